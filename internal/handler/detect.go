package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"wastesort/internal/category"
	"wastesort/internal/dto"
	"wastesort/internal/logger"
	"wastesort/internal/service/pipeline"
	"wastesort/internal/vision"
)

const maxUploadSize = 20 << 20

// DetectHandler handles POST /api/detect with a multipart "image" file. It
// runs one detection without touching the running session and returns the
// advisory and the annotated image.
func DetectHandler(detector pipeline.Detector, annotator pipeline.FrameAnnotator, aggregator pipeline.AdvisoryAggregator,
	table *category.Table, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "image file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "error reading image")
			return
		}

		frame, err := vision.DecodeFrame(data)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, err.Error())
			return
		}

		result, err := pipeline.DetectImage(r.Context(), frame, detector, annotator, aggregator)
		if err != nil {
			logger.Error("Detection on uploaded image failed: %v", err)
			status := http.StatusInternalServerError
			if errors.Is(err, category.ErrUnknownLabel) {
				status = http.StatusUnprocessableEntity
			}
			writeError(w, logger, status, err.Error())
			return
		}

		jpeg, err := result.Annotated.EncodeJPEG()
		if err != nil {
			logger.Error("Failed to encode annotated image: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "failed to encode image")
			return
		}

		resp := dto.DetectResponse{
			Advisory:   result.Advisory,
			Labels:     result.Labels.Sorted(),
			Detections: make([]dto.DetectionResult, 0, len(result.Detections)),
			Image:      base64.StdEncoding.EncodeToString(jpeg),
		}
		for _, d := range result.Detections {
			det := dto.DetectionResult{
				Label:      d.Label,
				Confidence: d.Confidence,
				X:          d.Box.Min.X,
				Y:          d.Box.Min.Y,
				Width:      d.Box.Dx(),
				Height:     d.Box.Dy(),
			}
			if entry, err := table.Lookup(d.Label); err == nil {
				det.Category = entry.Category.String()
			}
			resp.Detections = append(resp.Detections, det)
		}

		writeJSON(w, logger, http.StatusOK, resp)
	}
}
