package server

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// CreateRunRequest is the payload of POST /runs.
type CreateRunRequest struct {
	Topic    string `json:"topic"`
	Language string `json:"language,omitempty"`
}

// RunCreatedResponse carries the id of an accepted run.
type RunCreatedResponse struct {
	RunID string `json:"run_id"`
}
