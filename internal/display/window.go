package display

import (
	"strings"

	"gocv.io/x/gocv"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

// WindowSink shows frames in a local highgui window. The latest advisory is
// shown in the window title.
type WindowSink struct {
	window *gocv.Window
	title  string
	logger *logger.Logger
}

func NewWindowSink(title string, logger *logger.Logger) *WindowSink {
	return &WindowSink{
		window: gocv.NewWindow(title),
		title:  title,
		logger: logger,
	}
}

func (s *WindowSink) Present(frame *vision.Frame) {
	mat, err := frame.ToMat()
	if err != nil {
		s.logger.Error("Failed to show frame %d: %v", frame.Seq, err)
		return
	}
	defer mat.Close()

	if frame.Order == vision.RGB {
		gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)
	}
	s.window.IMShow(mat)
	s.window.WaitKey(1)
}

func (s *WindowSink) PresentAdvisory(text string) {
	s.window.SetWindowTitle(s.title + " | " + strings.ReplaceAll(text, "\n", "; "))
}

func (s *WindowSink) Close() error {
	return s.window.Close()
}
