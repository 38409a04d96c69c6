package pipeline

import (
	"context"

	"wastesort/internal/vision"
)

// ImageResult is the outcome of a single-image detection.
type ImageResult struct {
	Annotated  *vision.Frame
	Detections []vision.Detection
	Labels     vision.LabelSet
	Advisory   string
}

// DetectImage runs detector, annotator and aggregator on one frame without
// touching control state, displays or the recorder.
func DetectImage(ctx context.Context, frame *vision.Frame, detector Detector, annotator FrameAnnotator, aggregator AdvisoryAggregator) (*ImageResult, error) {
	detections, err := detector.Infer(ctx, frame)
	if err != nil {
		return nil, &ModelError{Seq: frame.Seq, Err: err}
	}

	annotated, labels := annotator.Annotate(frame, detections)
	advisory, err := aggregator.Aggregate(labels)
	if err != nil {
		return nil, err
	}

	return &ImageResult{
		Annotated:  annotated,
		Detections: detections,
		Labels:     labels,
		Advisory:   advisory,
	}, nil
}
