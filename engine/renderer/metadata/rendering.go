package metadata

/** @brief Sub rectangle of a render target. A zero Rect covers the whole target. */
type Rect struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

func (r Rect) IsZero() bool {
	return r.Width == 0 || r.Height == 0
}

type ClearFlags uint8

const (
	ClearDepth ClearFlags = 1 << iota
	ClearStencil
)

/** @brief Linear RGBA color used for render target clears. */
type ClearColor [4]float32
