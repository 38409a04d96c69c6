package display

import (
	"net/http"

	"github.com/hybridgroup/mjpeg"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

// MJPEGSink serves annotated frames as a multipart MJPEG stream.
type MJPEGSink struct {
	stream *mjpeg.Stream
	logger *logger.Logger
	encode func(*vision.Frame) ([]byte, error)
}

func NewMJPEGSink(logger *logger.Logger) *MJPEGSink {
	return &MJPEGSink{
		stream: mjpeg.NewStream(),
		logger: logger,
		encode: (*vision.Frame).EncodeJPEG,
	}
}

func (s *MJPEGSink) Present(frame *vision.Frame) {
	jpeg, err := s.encode(frame)
	if err != nil {
		s.logger.Error("Failed to encode frame %d for MJPEG: %v", frame.Seq, err)
		return
	}
	s.stream.UpdateJPEG(jpeg)
}

// PresentAdvisory is a no-op, the stream carries images only.
func (s *MJPEGSink) PresentAdvisory(string) {}

// Handler returns the HTTP handler of the stream.
func (s *MJPEGSink) Handler() http.Handler {
	return s.stream
}
