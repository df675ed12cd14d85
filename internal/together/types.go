package together

// SubmitRequest contains the parameters for creating a video generation job.
type SubmitRequest struct {
	// Model is the provider model identifier, e.g. "minimax/minimax-01-director".
	Model string
	// Prompt is the generation prompt text.
	Prompt string
	// Width is the target video width in pixels.
	Width int
	// Height is the target video height in pixels.
	Height int
}

// createRequest is the JSON body sent to the videos endpoint.
type createRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// createResponse is the JSON response returned after submitting a job.
type createResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

// outputItem is one entry of the output list in a status response.
type outputItem struct {
	URL string `json:"url"`
}

// nestedResult is the nested result object some models return.
type nestedResult struct {
	URL string `json:"url"`
}

// StatusResponse is the raw job status as reported by the provider.
// Models disagree on where the artifact URL lives, so all known shapes
// are decoded and the caller picks the first populated one.
type StatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	// OutputURL is the direct URL field shape.
	OutputURL string `json:"output_url,omitempty"`
	// Output is the list-of-items shape.
	Output []outputItem `json:"output,omitempty"`
	// Result is the nested-object shape.
	Result *nestedResult `json:"result,omitempty"`
	// Error is the failure reason, if any.
	Error string `json:"error,omitempty"`
	// Raw is the unparsed response body, kept for diagnostics.
	Raw []byte `json:"-"`
}

// cancelResponse is the JSON response returned when cancelling a job.
type cancelResponse struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
	Error     string `json:"error,omitempty"`
}
