package tensor

import "fmt"

// Channels is the channel count of every sampled frame.
const Channels = 3

// Frames is a dense [N, 3, H, W] buffer of normalized samples.
// It is owned by the pass that created it and released once that pass's
// inference has returned.
type Frames struct {
	Data   []float32
	Count  int
	Height int
	Width  int
}

// NewFrames allocates a zeroed frame tensor.
func NewFrames(count, height, width int) *Frames {
	if count < 0 || height < 0 || width < 0 {
		panic(fmt.Sprintf("tensor: negative frame shape %dx%dx%d", count, height, width))
	}
	return &Frames{
		Data:   make([]float32, count*Channels*height*width),
		Count:  count,
		Height: height,
		Width:  width,
	}
}

// FrameSize is the number of floats in one frame.
func (f *Frames) FrameSize() int {
	return Channels * f.Height * f.Width
}

// Frame returns the CHW slice of frame i. The slice aliases Data.
func (f *Frames) Frame(i int) []float32 {
	size := f.FrameSize()
	return f.Data[i*size : (i+1)*size]
}

// Range returns frames [start, end) as one contiguous slice aliasing Data.
func (f *Frames) Range(start, end int) []float32 {
	size := f.FrameSize()
	return f.Data[start*size : end*size]
}

// Release drops the backing buffer.
func (f *Frames) Release() {
	f.Data = nil
	f.Count = 0
}

// Released reports whether Release has been called.
func (f *Frames) Released() bool {
	return f.Data == nil
}

// Predictions is a dense [N, C] buffer of per-frame class scores.
type Predictions struct {
	Data    []float32
	Count   int
	Classes int
}

// NewPredictions allocates a zeroed prediction tensor.
func NewPredictions(count, classes int) *Predictions {
	if count < 0 || classes <= 0 {
		panic(fmt.Sprintf("tensor: invalid prediction shape %dx%d", count, classes))
	}
	return &Predictions{
		Data:    make([]float32, count*classes),
		Count:   count,
		Classes: classes,
	}
}

// Row returns the class scores of frame i. The slice aliases Data.
func (p *Predictions) Row(i int) []float32 {
	return p.Data[i*p.Classes : (i+1)*p.Classes]
}

// Range returns rows [start, end) as one contiguous slice aliasing Data.
func (p *Predictions) Range(start, end int) []float32 {
	return p.Data[start*p.Classes : end*p.Classes]
}

// At returns the score of class c for frame i.
func (p *Predictions) At(i, c int) float32 {
	return p.Data[i*p.Classes+c]
}

// Set stores the score of class c for frame i.
func (p *Predictions) Set(i, c int, v float32) {
	p.Data[i*p.Classes+c] = v
}

// Empty reports whether the tensor holds no frames.
func (p *Predictions) Empty() bool {
	return p == nil || p.Count == 0
}
