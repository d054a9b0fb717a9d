// Package patch implements the image-patch contract of spec §4.2: a
// zero-copy rectangular view into a frame's pixel buffer, plus the
// (x, y) patch location used throughout the trace and optimizer.
package patch

// Location is an integer offset from the top-left of a frame.
type Location struct {
	X, Y int
}

// PixelSize is fixed at 3 bytes/pixel (RGB) throughout the tracker.
const PixelSize = 3

// Image is the contract the projector and k-d-tree build require of a
// frame or sub-patch: dimensions, row stride, zero-copy sub-viewing and
// materialization to contiguous bytes.
type Image interface {
	Width() int
	Height() int
	PixelSize() int
	Stride() int
	NumPixels() int

	// SubView returns a zero-copy view into this image.
	SubView(x, y, w, h int) Image

	// ToBytes returns a contiguous row-major copy of the view, length
	// Width()*Height()*PixelSize().
	ToBytes() []byte
}

// Frame is a concrete, owned RGB image backed by a single contiguous byte
// slice. SubView returns zero-copy views that share Frame's backing array.
type Frame struct {
	width, height, stride, pixelSize int
	pix                              []byte
	offX, offY                       int
}

// NewFrame wraps pix (row-major, stride bytes/row, pixelSize bytes/pixel)
// as a top-level owning Frame.
func NewFrame(width, height, pixelSize int, pix []byte) *Frame {
	return &Frame{
		width:     width,
		height:    height,
		stride:    width * pixelSize,
		pixelSize: pixelSize,
		pix:       pix,
	}
}

func (f *Frame) Width() int     { return f.width }
func (f *Frame) Height() int    { return f.height }
func (f *Frame) PixelSize() int { return f.pixelSize }
func (f *Frame) Stride() int    { return f.stride }
func (f *Frame) NumPixels() int { return f.width * f.height }

// row returns the byte offset into pix of absolute row y.
func (f *Frame) row(y int) int { return (f.offY+y)*f.stride + f.offX*f.pixelSize }

func (f *Frame) SubView(x, y, w, h int) Image {
	return &Frame{
		width:     w,
		height:    h,
		stride:    f.stride,
		pixelSize: f.pixelSize,
		pix:       f.pix,
		offX:      f.offX + x,
		offY:      f.offY + y,
	}
}

// ToBytes materializes the view as a contiguous row-major byte slice.
func (f *Frame) ToBytes() []byte {
	rowBytes := f.width * f.pixelSize
	out := make([]byte, rowBytes*f.height)
	for y := 0; y < f.height; y++ {
		start := f.row(y)
		copy(out[y*rowBytes:(y+1)*rowBytes], f.pix[start:start+rowBytes])
	}
	return out
}
