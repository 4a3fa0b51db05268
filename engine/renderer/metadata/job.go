package metadata

/** @brief Definition for the body of a job. Results are sent on the channel. */
type JobStart func(params interface{}, results chan<- interface{}) error

/** @brief Definition for completion of a job. */
type JobOnComplete func(results <-chan interface{})

/** @brief Definition for failure of a job. */
type JobOnFailure func(err error)

/**
 * @brief Describes a job to be run by the job system.
 */
type JobTask struct {
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure JobOnFailure
	/** @brief Invoked after OnComplete or OnFailure. Optional. */
	OnCompletionCallback func()
	/** @brief Data passed to OnStart. */
	InputParams interface{}
}
