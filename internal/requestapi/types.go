package requestapi

import (
	"errors"
	"fmt"

	"github.com/digital-land/submit/internal/results"
)

// ErrNotFound is returned when the backend has no request with the given id.
var ErrNotFound = errors.New("request not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request api error (status %d): %s", e.StatusCode, e.Body)
}

// URLRequest asks the backend to fetch and check a remote endpoint.
type URLRequest struct {
	Dataset    string
	Collection string
	URL        string
	GeomType   string
}

// FileRequest asks the backend to check a file already staged in S3.
type FileRequest struct {
	Dataset          string
	Collection       string
	OriginalFilename string
	UploadedFilename string
	GeomType         string
}

// DetailsQuery selects one page of a request's response details.
type DetailsQuery struct {
	Offset   int
	Limit    int
	JSONPath string
}

type createRequest struct {
	Params results.RequestParams `json:"params"`
}

// Pagination headers sent with response-details pages.
const (
	headerTotalResults = "X-Pagination-Total-Results"
	headerOffset       = "X-Pagination-Offset"
	headerLimit        = "X-Pagination-Limit"
)
