package results

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Severity of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNotice  Severity = "notice"
	SeverityInfo    Severity = "info"
)

// Issue is one validation finding attached to a row and a logical field.
// The row-details and issue-log payloads spell some keys differently;
// both spellings decode into the same struct.
type Issue struct {
	Severity    Severity `json:"severity"`
	Field       string   `json:"field"`
	IssueType   string   `json:"issue-type,omitempty"`
	Description string   `json:"description,omitempty"`
	Message     string   `json:"message,omitempty"`
	Value       string   `json:"value,omitempty"`
	EntryNumber int      `json:"entry-number,omitempty"`
	LineNumber  int      `json:"line-number,omitempty"`
}

// IsError reports whether the issue has error severity.
func (i Issue) IsError() bool { return i.Severity == SeverityError }

// Text is the human-readable part of the issue.
func (i Issue) Text() string {
	if i.Message != "" {
		return i.Message
	}
	return i.Description
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Severity       Severity `json:"severity"`
		Field          string   `json:"field"`
		IssueType      string   `json:"issue-type"`
		IssueTypeAlt   string   `json:"issue_type"`
		Description    string   `json:"description"`
		Message        string   `json:"message"`
		Value          flexText `json:"value"`
		EntryNumber    flexInt  `json:"entry-number"`
		EntryNumberAlt flexInt  `json:"entry_number"`
		LineNumber     flexInt  `json:"line-number"`
		LineNumberAlt  flexInt  `json:"line_number"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Issue{
		Severity:    Severity(strings.ToLower(string(raw.Severity))),
		Field:       raw.Field,
		IssueType:   firstNonEmpty(raw.IssueType, raw.IssueTypeAlt),
		Description: raw.Description,
		Message:     raw.Message,
		Value:       string(raw.Value),
		EntryNumber: int(raw.EntryNumber),
		LineNumber:  int(raw.LineNumber),
	}
	if i.EntryNumber == 0 {
		i.EntryNumber = int(raw.EntryNumberAlt)
	}
	if i.LineNumber == 0 {
		i.LineNumber = int(raw.LineNumberAlt)
	}
	return nil
}

// Row is one converted input record with the issues raised against it.
type Row struct {
	EntryNumber  int     `json:"entry_number"`
	ConvertedRow Record  `json:"converted_row"`
	IssueLogs    []Issue `json:"issue_logs"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw struct {
		EntryNumber    flexInt `json:"entry_number"`
		EntryNumberAlt flexInt `json:"entry-number"`
		ConvertedRow   Record  `json:"converted_row"`
		IssueLogs      []Issue `json:"issue_logs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.EntryNumber = int(raw.EntryNumber)
	if r.EntryNumber == 0 {
		r.EntryNumber = int(raw.EntryNumberAlt)
	}
	r.ConvertedRow = raw.ConvertedRow
	r.IssueLogs = raw.IssueLogs
	return nil
}

// ErrorCount is the number of error-severity issues on the row.
func (r Row) ErrorCount() int {
	n := 0
	for _, issue := range r.IssueLogs {
		if issue.IsError() {
			n++
		}
	}
	return n
}

// IssueFor returns the first issue raised against field, of any severity.
func (r Row) IssueFor(field string) (Issue, bool) {
	for _, issue := range r.IssueLogs {
		if issue.Field == field {
			return issue, true
		}
	}
	return Issue{}, false
}

// ColumnFieldMapping associates a source column header with a logical field.
// Missing marks a field that was absent from the source file entirely.
type ColumnFieldMapping struct {
	Column  string `json:"column"`
	Field   string `json:"field"`
	Missing bool   `json:"missing,omitempty"`
}

// ColumnFieldLog is the ordered mapping list reported by the backend. A nil
// log means the backend did not send one.
type ColumnFieldLog []ColumnFieldMapping

// ByColumn returns the first entry for a source column.
func (l ColumnFieldLog) ByColumn(column string) (ColumnFieldMapping, bool) {
	for _, m := range l {
		if m.Column == column {
			return m, true
		}
	}
	return ColumnFieldMapping{}, false
}

// ByField returns the first entry for a logical field.
func (l ColumnFieldLog) ByField(field string) (ColumnFieldMapping, bool) {
	for _, m := range l {
		if m.Field == field {
			return m, true
		}
	}
	return ColumnFieldMapping{}, false
}

// FieldFor resolves a raw key to its logical field; unmapped keys are
// returned unchanged.
func (l ColumnFieldLog) FieldFor(key string) string {
	if m, ok := l.ByColumn(key); ok && m.Field != "" {
		return m.Field
	}
	return key
}

// MissingFields lists fields flagged missing, in log order.
func (l ColumnFieldLog) MissingFields() []string {
	var out []string
	for _, m := range l {
		if m.Missing {
			out = append(out, m.Field)
		}
	}
	return out
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexText accepts any JSON scalar and keeps its display text.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	*f = flexText(displayValue(data))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
