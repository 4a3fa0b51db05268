package metadata

type ResourceType int

/** @brief Asset types known to the loaders. */
const (
	ResourceTypeNone ResourceType = iota
	/** @brief Plain text file. */
	ResourceTypeText
	/** @brief Binary blob, e.g. a precompiled shader. */
	ResourceTypeBinary
	/** @brief Shader stage source text. */
	ResourceTypeShader
)

/**
 * @brief A generic structure for a loaded asset. All asset loaders
 * load data into these.
 */
type Asset struct {
	/** @brief The name of the asset. */
	Name string
	/** @brief The full file path of the asset. */
	FullPath string
	/** @brief The size of the asset data in bytes. */
	DataSize uint64
	/** @brief The asset data. */
	Data []byte
}
