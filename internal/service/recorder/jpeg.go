package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"wastesort/internal/vision"
)

// JPEGSink writes frames as JPEG files, creating directories as needed.
type JPEGSink struct{}

func NewJPEGSink() *JPEGSink {
	return &JPEGSink{}
}

func (s *JPEGSink) Write(path string, frame *vision.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	mat, err := frame.ToMat()
	if err != nil {
		return err
	}
	defer mat.Close()

	if frame.Order == vision.RGB {
		gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)
	}

	if ok := gocv.IMWrite(path, mat); !ok {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}
