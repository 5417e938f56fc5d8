package server

// IngestRequest is the optional body of POST /ingest.
type IngestRequest struct {
	Path string `json:"path,omitempty"`
}

// IngestResponse is the body returned by POST /ingest.
type IngestResponse struct {
	Status             string `json:"status"`
	DocumentsProcessed int    `json:"documents_processed"`
	ChunksCreated      int    `json:"chunks_created"`
	CollectionName     string `json:"collection_name"`
	BatchesSkipped     int    `json:"batches_skipped"`
	FinalCount         int    `json:"final_count"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
