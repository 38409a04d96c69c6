// Package vision holds the frame and detection types shared by sources,
// detectors, annotators and sinks.
package vision

import (
	"fmt"
	"image"
	"sort"
	"time"
)

// ChannelOrder describes how pixel bytes are laid out.
type ChannelOrder int

const (
	BGR ChannelOrder = iota
	RGB
	Gray
)

// Channels returns the number of bytes per pixel.
func (o ChannelOrder) Channels() int {
	switch o {
	case Gray:
		return 1
	default:
		return 3
	}
}

func (o ChannelOrder) String() string {
	switch o {
	case BGR:
		return "BGR"
	case RGB:
		return "RGB"
	case Gray:
		return "Gray"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(o))
	}
}

// Frame is a packed 8-bit pixel buffer.
//
// A Frame is never modified after creation. Code that needs a changed image
// (an annotator) produces a new Frame.
type Frame struct {
	Width      int
	Height     int
	Order      ChannelOrder
	Data       []byte
	Seq        uint64    // Position in the source, starting at 0
	CapturedAt time.Time // Zero for still images
}

// NewFrame validates the buffer size against the dimensions.
func NewFrame(width, height int, order ChannelOrder, data []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if expected := width * height * order.Channels(); len(data) != expected {
		return nil, fmt.Errorf("invalid %s data size: got %d, expected %d", order, len(data), expected)
	}
	return &Frame{Width: width, Height: height, Order: order, Data: data}, nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	c := *f
	c.Data = data
	return &c
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Detection is one object found by a detector, in frame coordinates.
type Detection struct {
	Box        image.Rectangle // (x1,y1) = Min, (x2,y2) = Max
	ClassID    int
	Label      string
	Confidence float32
}

// LabelSet is a set of distinct raw class labels.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from labels, collapsing duplicates.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, label := range labels {
		set.Add(label)
	}
	return set
}

func (s LabelSet) Add(label string) {
	s[label] = struct{}{}
}

func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Sorted returns the labels in lexicographic order.
func (s LabelSet) Sorted() []string {
	labels := make([]string, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// LabelsOf collects the distinct labels of detections.
func LabelsOf(detections []Detection) LabelSet {
	set := make(LabelSet, len(detections))
	for _, d := range detections {
		set.Add(d.Label)
	}
	return set
}
