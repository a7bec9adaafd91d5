package results

import (
	"github.com/digital-land/submit/internal/pkg/logger"
)

// RequestStatus is the lifecycle state of an async check request.
type RequestStatus string

const (
	StatusNew        RequestStatus = "NEW"
	StatusPending    RequestStatus = "PENDING"
	StatusProcessing RequestStatus = "PROCESSING"
	StatusComplete   RequestStatus = "COMPLETE"
	StatusFailed     RequestStatus = "FAILED"
)

// Request types accepted by the async request API.
const (
	RequestTypeCheckURL  = "check_url"
	RequestTypeCheckFile = "check_file"
)

// RequestParams echoes what the user asked to be checked.
type RequestParams struct {
	Type             string `json:"type"`
	Dataset          string `json:"dataset"`
	Collection       string `json:"collection"`
	URL              string `json:"url,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	UploadedFilename string `json:"uploaded_filename,omitempty"`
	GeomType         string `json:"geom_type,omitempty"`
}

// RequestError is a failure reported by the backend for the whole request.
type RequestError struct {
	Code        flexText `json:"code,omitempty"`
	Message     string   `json:"message"`
	Description string   `json:"description,omitempty"`
}

// ValidationData is the summary payload of a completed request.
type ValidationData struct {
	ConvertedCSV   []Record       `json:"converted-csv"`
	IssueLog       []Issue        `json:"issue-log"`
	ColumnFieldLog ColumnFieldLog `json:"column-field-log"`
	ErrorSummary   []string       `json:"error-summary,omitempty"`
}

// RequestResponse holds either validation data or an error.
type RequestResponse struct {
	Data  *ValidationData `json:"data"`
	Error *RequestError   `json:"error"`
}

// RequestData is one async check request.
type RequestData struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Status   RequestStatus    `json:"status"`
	Created  string           `json:"created,omitempty"`
	Modified string           `json:"modified,omitempty"`
	Params   RequestParams    `json:"params"`
	Response *RequestResponse `json:"response"`
}

// IsComplete reports whether processing finished, successfully or not.
func (r *RequestData) IsComplete() bool {
	return r.Status == StatusComplete || r.Status == StatusFailed
}

// IsPending reports whether the request is still queued or running.
func (r *RequestData) IsPending() bool { return !r.IsComplete() }

// IsFailed reports whether the backend could not process the request.
func (r *RequestData) IsFailed() bool {
	return r.Status == StatusFailed || (r.Status == StatusComplete && r.Failure() != nil)
}

// Failure returns the backend's error for the request, if any.
func (r *RequestData) Failure() *RequestError {
	if r.Response == nil {
		return nil
	}
	return r.Response.Error
}

func (r *RequestData) data() *ValidationData {
	if r.Response == nil || r.Response.Data == nil {
		logger.Warn("request has no response data", "request_id", r.ID, "status", string(r.Status))
		return nil
	}
	return r.Response.Data
}

// ColumnFieldLog returns the request's column-field log, nil if absent.
func (r *RequestData) ColumnFieldLog() ColumnFieldLog {
	if d := r.data(); d != nil {
		return d.ColumnFieldLog
	}
	return nil
}

// HasErrors reports whether any error-severity issue was raised or a field
// required by the dataset was missing from the source.
func (r *RequestData) HasErrors() bool {
	d := r.data()
	if d == nil {
		return false
	}
	for _, issue := range d.IssueLog {
		if issue.IsError() {
			return true
		}
	}
	return len(d.ColumnFieldLog.MissingFields()) > 0
}

// ValidationRows pairs the converted CSV rows with their issues. Rows are
// numbered by position (entry n+1 for index n) unless an issue pins an
// explicit entry number. Issues are placed by line number (line 2 is the
// first data row). An issue pointing outside the CSV, or pinning an entry
// number that another row already holds, is logged and dropped.
func (r *RequestData) ValidationRows() []Row {
	d := r.data()
	if d == nil {
		return nil
	}

	rows := make([]Row, len(d.ConvertedCSV))
	holder := make(map[int]int, len(rows))
	for i, rec := range d.ConvertedCSV {
		rows[i] = Row{EntryNumber: i + 1, ConvertedRow: rec}
		holder[i+1] = i
	}
	pinned := make(map[int]bool)

	for _, issue := range d.IssueLog {
		idx := -1
		switch {
		case issue.LineNumber >= 2:
			idx = issue.LineNumber - 2
		case issue.EntryNumber >= 1:
			idx = issue.EntryNumber - 1
		}
		if idx < 0 || idx >= len(rows) {
			logger.Warn("issue outside converted rows",
				"request_id", r.ID,
				"line_number", issue.LineNumber,
				"entry_number", issue.EntryNumber,
				"rows", len(rows))
			continue
		}

		if n := issue.EntryNumber; n > 0 && n != rows[idx].EntryNumber {
			if other, taken := holder[n]; (taken && other != idx) || pinned[idx] {
				logger.Warn("issue entry number conflicts with converted rows",
					"request_id", r.ID,
					"line_number", issue.LineNumber,
					"entry_number", n,
					"row_entry_number", rows[idx].EntryNumber)
				continue
			}
			delete(holder, rows[idx].EntryNumber)
			holder[n] = idx
			rows[idx].EntryNumber = n
		}
		if issue.EntryNumber > 0 {
			pinned[idx] = true
		}
		issue.EntryNumber = rows[idx].EntryNumber
		rows[idx].IssueLogs = append(rows[idx].IssueLogs, issue)
	}
	return rows
}

// AggregatedErrors aggregates the whole issue log against the converted rows.
func (r *RequestData) AggregatedErrors() AggregatedErrors {
	rows := r.ValidationRows()
	var issues []Issue
	for _, row := range rows {
		issues = append(issues, row.IssueLogs...)
	}
	return AggregateErrors(rows, issues, r.ColumnFieldLog())
}

// MessageFormatter turns grouped issues into sentences for the error summary.
type MessageFormatter interface {
	IssueSummary(issueType, field string, rows int) string
	MissingField(field string) string
}

// ErrorSummary returns one sentence per (issue type, field) pair of
// error-severity issues, counting distinct rows, followed by one sentence
// per missing field. With a nil formatter the backend's own summary is
// returned.
func (r *RequestData) ErrorSummary(f MessageFormatter) []string {
	d := r.data()
	if d == nil {
		return []string{}
	}
	if f == nil {
		return append([]string{}, d.ErrorSummary...)
	}

	type group struct {
		issueType, field string
		entries          map[int]bool
	}
	var order []*group
	groups := make(map[[2]string]*group)

	for _, row := range r.ValidationRows() {
		for _, issue := range row.IssueLogs {
			if !issue.IsError() {
				continue
			}
			k := [2]string{issue.IssueType, issue.Field}
			g, ok := groups[k]
			if !ok {
				g = &group{issueType: issue.IssueType, field: issue.Field, entries: map[int]bool{}}
				groups[k] = g
				order = append(order, g)
			}
			g.entries[row.EntryNumber] = true
		}
	}

	summary := make([]string, 0, len(order))
	for _, g := range order {
		summary = append(summary, f.IssueSummary(g.issueType, g.field, len(g.entries)))
	}
	for _, field := range d.ColumnFieldLog.MissingFields() {
		summary = append(summary, f.MissingField(field))
	}
	return summary
}
