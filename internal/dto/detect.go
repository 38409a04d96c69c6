package dto

// DetectionResult is one box of a detect response.
type DetectionResult struct {
	Label      string  `json:"label"`
	Category   string  `json:"category,omitempty"`
	Confidence float32 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// DetectResponse is returned for a single uploaded image.
type DetectResponse struct {
	Advisory   string            `json:"advisory"`
	Labels     []string          `json:"labels"`
	Detections []DetectionResult `json:"detections"`
	Image      string            `json:"image"` // base64 JPEG, annotated
}
