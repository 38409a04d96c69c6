package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ToMat copies the frame into a new gocv.Mat. The caller closes it.
func (f *Frame) ToMat() (gocv.Mat, error) {
	matType := gocv.MatTypeCV8UC3
	if f.Order == Gray {
		matType = gocv.MatTypeCV8UC1
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %w", err)
	}
	// NewMatFromBytes shares the Go buffer, the clone keeps the frame immutable
	defer mat.Close()
	return mat.Clone(), nil
}

// FrameFromMat copies a BGR or grayscale gocv.Mat into a Frame.
func FrameFromMat(mat gocv.Mat) (*Frame, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("mat is empty")
	}

	var order ChannelOrder
	switch mat.Channels() {
	case 1:
		order = Gray
	case 3:
		order = BGR
	default:
		return nil, fmt.Errorf("unsupported channel count %d", mat.Channels())
	}

	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	buf := src.ToBytes()
	data := make([]byte, len(buf))
	copy(data, buf)

	return NewFrame(mat.Cols(), mat.Rows(), order, data)
}

// EncodeJPEG encodes the frame as JPEG bytes.
func (f *Frame) EncodeJPEG() ([]byte, error) {
	mat, err := f.ToMat()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if f.Order == RGB {
		gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// DecodeFrame decodes encoded image bytes (JPEG, PNG, ...) into a BGR frame.
func DecodeFrame(data []byte) (*Frame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}
	return FrameFromMat(mat)
}
