package http

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// IngestResponse is the response body for POST /api/v1/documents.
type IngestResponse struct {
	Status  string `json:"status"`
	Chunks  int    `json:"chunks"`
	Stored  int    `json:"stored"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	Question       string   `json:"question"`
	Backend        string   `json:"backend,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	Answer    string `json:"answer"`
	Retrieved int    `json:"retrieved"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query          string `json:"query"`
	SourceFilename string `json:"source_filename,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// SearchHit is one retrieved chunk in a search response.
type SearchHit struct {
	ID             string  `json:"id"`
	Score          float32 `json:"score"`
	Text           string  `json:"text"`
	SourceFilename string  `json:"source_filename,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}
