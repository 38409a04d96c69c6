package dto

// ModeRequest sets the loop mode: running, paused or exiting.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// RecordRequest enables or disables recording, or flips it when Toggle is set.
type RecordRequest struct {
	Enabled *bool `json:"enabled"`
	Toggle  bool  `json:"toggle"`
}

// DestinationRequest sets the recording directory.
type DestinationRequest struct {
	Path string `json:"path"`
}

// StartSessionRequest starts a session on Source. An empty source uses the
// configured default.
type StartSessionRequest struct {
	Source string `json:"source"`
}

// StartSessionResponse carries the id of the new session.
type StartSessionResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error string `json:"error"`
}
