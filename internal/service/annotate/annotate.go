// Package annotate draws detections onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

var palette = []color.RGBA{
	hex(0xFF3838), hex(0xFF9D97), hex(0xFF701F), hex(0xFFB21D), hex(0xCFD231),
	hex(0x48F90A), hex(0x92CC17), hex(0x3DDB86), hex(0x1A9334), hex(0x00D4BB),
	hex(0x2C99A8), hex(0x00C2FF), hex(0x344593), hex(0x6473FF), hex(0x0018EC),
	hex(0x8438FF), hex(0x520085), hex(0xCB38FF), hex(0xFF95C8), hex(0xFF37C7),
}

var textColor = color.RGBA{R: 255, G: 255, B: 255, A: 0}

func hex(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0}
}

// ClassColor returns the box color of a class id.
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// Options controls what is drawn for each detection.
type Options struct {
	LineThickness  int
	HideLabels     bool
	HideConfidence bool
}

// Annotator draws boxes and labels on a copy of a frame.
type Annotator struct {
	opts   Options
	logger *logger.Logger
}

func NewAnnotator(opts Options, logger *logger.Logger) *Annotator {
	if opts.LineThickness <= 0 {
		opts.LineThickness = 3
	}
	return &Annotator{opts: opts, logger: logger}
}

// Annotate returns the annotated frame and the distinct labels of
// detections. The input frame is not modified. With no detections the
// input frame itself is returned. If drawing fails the error is logged and
// the unannotated frame is returned.
func (a *Annotator) Annotate(frame *vision.Frame, detections []vision.Detection) (*vision.Frame, vision.LabelSet) {
	labels := vision.LabelsOf(detections)
	if len(detections) == 0 {
		return frame, labels
	}

	annotated, err := a.draw(frame, detections)
	if err != nil {
		a.logger.Error("Failed to annotate frame %d: %v", frame.Seq, err)
		return frame, labels
	}
	return annotated, labels
}

// Label returns the text drawn above a detection, or "" when labels are
// hidden.
func (a *Annotator) Label(d vision.Detection) string {
	switch {
	case a.opts.HideLabels:
		return ""
	case a.opts.HideConfidence:
		return d.Label
	default:
		return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
	}
}

func (a *Annotator) draw(frame *vision.Frame, detections []vision.Detection) (*vision.Frame, error) {
	mat, err := frame.ToMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	fontScale := float64(a.opts.LineThickness) / 3
	textThickness := max(a.opts.LineThickness-1, 1)

	for _, d := range detections {
		c := ClassColor(d.ClassID)
		if frame.Order == vision.RGB {
			// gocv colors assume BGR pixel order
			c.R, c.B = c.B, c.R
		}

		if err := gocv.Rectangle(&mat, d.Box, c, a.opts.LineThickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := a.Label(d)
		if label == "" {
			continue
		}

		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, fontScale, textThickness)
		top := d.Box.Min.Y - size.Y - 3
		outside := top >= 0
		if !outside {
			top = d.Box.Min.Y
		}
		background := image.Rect(d.Box.Min.X, top, d.Box.Min.X+size.X, top+size.Y+3)
		if err := gocv.Rectangle(&mat, background, c, -1); err != nil {
			return nil, fmt.Errorf("failed to draw label background: %w", err)
		}

		origin := image.Pt(d.Box.Min.X, top+size.Y+1)
		if err := gocv.PutText(&mat, label, origin, gocv.FontHersheySimplex, fontScale, textColor, textThickness); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	annotated, err := vision.FrameFromMat(mat)
	if err != nil {
		return nil, err
	}
	annotated.Order = frame.Order
	annotated.Seq = frame.Seq
	annotated.CapturedAt = frame.CapturedAt
	return annotated, nil
}
