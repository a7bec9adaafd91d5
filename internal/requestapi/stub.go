package requestapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/results"
)

// Stub is an in-memory stand-in for the async request API. Requests stay
// PENDING for the configured delay, then complete with generated rows. A
// URL or filename containing "fail" completes as FAILED.
type Stub struct {
	mu       sync.Mutex
	requests map[string]*stubRequest
	delay    time.Duration
	rows     int
	now      func() time.Time
}

type stubRequest struct {
	data    results.RequestData
	created time.Time
	rows    []results.Row
}

// NewStub creates a stub whose checks take delay and produce rows rows.
func NewStub(delay time.Duration, rows int) *Stub {
	return &Stub{
		requests: make(map[string]*stubRequest),
		delay:    delay,
		rows:     rows,
		now:      time.Now,
	}
}

// Handler serves the request API routes.
func (s *Stub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/requests", s.handleCreate)
	r.Get("/requests/{id}", s.handleGet)
	r.Get("/requests/{id}/response-details", s.handleDetails)
	return r
}

func (s *Stub) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if body.Params.Type != results.RequestTypeCheckURL && body.Params.Type != results.RequestTypeCheckFile {
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unknown request type", Code: "invalid_type"})
		return
	}

	now := s.now()
	req := &stubRequest{
		created: now,
		data: results.RequestData{
			ID:       uuid.NewString(),
			Type:     body.Params.Type,
			Status:   results.StatusNew,
			Created:  now.UTC().Format(time.RFC3339),
			Modified: now.UTC().Format(time.RFC3339),
			Params:   body.Params,
		},
	}
	s.mu.Lock()
	s.requests[req.data.ID] = req
	s.mu.Unlock()

	logger.Info("stub request created", "request_id", req.data.ID, "type", body.Params.Type, "dataset", body.Params.Dataset)
	httputil.JSON(w, http.StatusAccepted, req.data)
}

// advance moves a request along its lifecycle; the caller holds mu.
func (s *Stub) advance(req *stubRequest) {
	if req.data.IsComplete() {
		return
	}
	if s.now().Sub(req.created) < s.delay {
		req.data.Status = results.StatusPending
		return
	}
	req.data.Modified = s.now().UTC().Format(time.RFC3339)

	p := req.data.Params
	if strings.Contains(p.URL, "fail") || strings.Contains(p.OriginalFilename, "fail") {
		req.data.Status = results.StatusFailed
		req.data.Response = &results.RequestResponse{Error: &results.RequestError{
			Message:     "The data could not be retrieved",
			Description: "The stub fails any request whose source mentions fail",
		}}
		return
	}

	req.rows = stubRows(s.rows)
	data := &results.ValidationData{
		ColumnFieldLog: results.ColumnFieldLog{
			{Column: "Reference", Field: "reference"},
			{Column: "Name", Field: "name"},
			{Column: "StartDate", Field: "start-date"},
			{Column: "point", Field: "point"},
			{Column: "", Field: "organisation", Missing: true},
		},
	}
	for _, row := range req.rows {
		data.ConvertedCSV = append(data.ConvertedCSV, row.ConvertedRow)
		data.IssueLog = append(data.IssueLog, row.IssueLogs...)
	}
	req.data.Status = results.StatusComplete
	req.data.Response = &results.RequestResponse{Data: data}
}

// stubRows builds n rows; every tenth has an invalid start date.
func stubRows(n int) []results.Row {
	rows := make([]results.Row, 0, n)
	for i := 1; i <= n; i++ {
		date := fmt.Sprintf("2020-01-%02d", i%28+1)
		var issues []results.Issue
		if i%10 == 0 {
			date = "31/02/2020"
			issues = append(issues, results.Issue{
				Severity:    results.SeverityError,
				Field:       "start-date",
				IssueType:   "invalid date",
				Message:     "start-date must be a real date",
				Value:       date,
				EntryNumber: i,
				LineNumber:  i + 1,
			})
		}
		rows = append(rows, results.Row{
			EntryNumber: i,
			ConvertedRow: results.NewRecord(
				"Reference", fmt.Sprintf("REF-%03d", i),
				"Name", fmt.Sprintf("Site %d", i),
				"StartDate", date,
				"point", fmt.Sprintf("POINT (-0.%04d 51.5)", i),
			),
			IssueLogs: issues,
		})
	}
	return rows
}

func (s *Stub) lookup(id string) (*stubRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if ok {
		s.advance(req)
	}
	return req, ok
}

func (s *Stub) handleGet(w http.ResponseWriter, r *http.Request) {
	req, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		httputil.JSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "request not found"})
		return
	}
	s.mu.Lock()
	data := req.data
	s.mu.Unlock()
	httputil.JSON(w, http.StatusOK, data)
}

func (s *Stub) handleDetails(w http.ResponseWriter, r *http.Request) {
	req, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		httputil.JSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "request not found"})
		return
	}
	if jp := r.URL.Query().Get("jsonpath"); jp != "" {
		logger.Debug("stub ignores jsonpath filter", "jsonpath", jp)
	}

	s.mu.Lock()
	rows := req.rows
	s.mu.Unlock()

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + limit
	if limit <= 0 || end > len(rows) {
		end = len(rows)
	}
	page := rows[offset:end]
	if page == nil {
		page = []results.Row{}
	}

	w.Header().Set(headerTotalResults, strconv.Itoa(len(rows)))
	w.Header().Set(headerOffset, strconv.Itoa(offset))
	w.Header().Set(headerLimit, strconv.Itoa(limit))
	httputil.JSON(w, http.StatusOK, page)
}

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
