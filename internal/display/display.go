// Package display holds the sinks that show annotated frames and advisories:
// websocket viewers, an MJPEG stream, an MQTT topic and a local window.
package display

import "wastesort/internal/vision"

// Sink shows frames and advisories. Implementations log their own errors.
type Sink interface {
	Present(frame *vision.Frame)
	PresentAdvisory(text string)
}

// Multi forwards every call to each of its sinks in order.
type Multi []Sink

func (m Multi) Present(frame *vision.Frame) {
	for _, s := range m {
		s.Present(frame)
	}
}

func (m Multi) PresentAdvisory(text string) {
	for _, s := range m {
		s.PresentAdvisory(text)
	}
}
