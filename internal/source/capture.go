package source

import (
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"wastesort/internal/vision"
)

// reopenAfter is the number of consecutive failed reads after which a live
// capture is closed and opened again.
const reopenAfter = 30

// ImageSource yields a fixed list of still images in order.
type ImageSource struct {
	files []string
	next  int
}

func NewImageSource(files []string) *ImageSource {
	return &ImageSource{files: files}
}

func (s *ImageSource) Next() (*vision.Frame, error) {
	if s.next >= len(s.files) {
		return nil, ErrExhausted
	}
	path := s.files[s.next]
	seq := uint64(s.next)
	s.next++

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image %s", path)
	}

	frame, err := vision.FrameFromMat(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image %s: %w", path, err)
	}
	frame.Seq = seq
	return frame, nil
}

func (s *ImageSource) Close() error { return nil }

func (s *ImageSource) Describe() string {
	return fmt.Sprintf("images (%d files)", len(s.files))
}

// Remaining returns the number of images not yet read.
func (s *ImageSource) Remaining() int {
	return len(s.files) - s.next
}

// CaptureSource wraps a gocv.VideoCapture. Video files end with
// ErrExhausted; cameras and streams report failed reads as ErrTransient
// and are reopened after repeated failures.
type CaptureSource struct {
	mu       sync.Mutex
	open     func() (*gocv.VideoCapture, error)
	capture  *gocv.VideoCapture
	img      gocv.Mat
	live     bool
	name     string
	seq      uint64
	failures int
}

// OpenVideo opens a video file.
func OpenVideo(path string) (*CaptureSource, error) {
	return newCaptureSource("video "+path, false, func() (*gocv.VideoCapture, error) {
		return gocv.VideoCaptureFile(path)
	})
}

// OpenCamera opens a local camera by device index.
func OpenCamera(index int) (*CaptureSource, error) {
	return newCaptureSource(fmt.Sprintf("camera %d", index), true, func() (*gocv.VideoCapture, error) {
		return gocv.VideoCaptureDevice(index)
	})
}

// OpenStream opens a network stream (rtsp, rtmp, http).
func OpenStream(url string) (*CaptureSource, error) {
	return newCaptureSource("stream "+url, true, func() (*gocv.VideoCapture, error) {
		capture, err := gocv.VideoCaptureFile(url)
		if err != nil {
			return nil, err
		}
		// Keep latency low on live streams
		capture.Set(gocv.VideoCaptureBufferSize, 1)
		return capture, nil
	})
}

func newCaptureSource(name string, live bool, open func() (*gocv.VideoCapture, error)) (*CaptureSource, error) {
	capture, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("failed to open %s", name)
	}
	return &CaptureSource{
		open:    open,
		capture: capture,
		img:     gocv.NewMat(),
		live:    live,
		name:    name,
	}, nil
}

func (s *CaptureSource) Next() (*vision.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		if !s.live {
			return nil, ErrExhausted
		}
		if err := s.reopen(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}

	if ok := s.capture.Read(&s.img); !ok || s.img.Empty() {
		if !s.live {
			return nil, ErrExhausted
		}
		s.failures++
		if s.failures >= reopenAfter {
			s.capture.Close()
			s.capture = nil
		}
		return nil, fmt.Errorf("%w: read failed on %s", ErrTransient, s.name)
	}
	s.failures = 0

	frame, err := vision.FrameFromMat(s.img)
	if err != nil {
		if s.live {
			return nil, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, fmt.Errorf("failed to convert frame from %s: %w", s.name, err)
	}
	frame.Seq = s.seq
	frame.CapturedAt = time.Now()
	s.seq++
	return frame, nil
}

func (s *CaptureSource) reopen() error {
	capture, err := s.open()
	if err != nil {
		return err
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("failed to reopen %s", s.name)
	}
	s.capture = capture
	s.failures = 0
	return nil
}

func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.img.Close()
	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

func (s *CaptureSource) Describe() string {
	return s.name
}
