package results

import (
	"bytes"
	"encoding/json"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// IssueDetail is the part of an issue shown next to a field on the errors page.
type IssueDetail struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FieldValue is a field's value and its error, if any. A nil Issue
// serialises as `false`.
type FieldValue struct {
	Value string
	Issue *IssueDetail
}

// MarshalJSON implements json.Marshaler.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	out := struct {
		Value string      `json:"value"`
		Issue interface{} `json:"issue"`
	}{Value: v.Value, Issue: false}
	if v.Issue != nil {
		out.Issue = v.Issue
	}
	return json.Marshal(out)
}

// FieldMap maps logical fields to values, keeping first-seen order.
type FieldMap struct {
	fields []string
	values map[string]FieldValue
}

func newFieldMap() *FieldMap {
	return &FieldMap{values: make(map[string]FieldValue)}
}

// Fields returns the field names in order.
func (m *FieldMap) Fields() []string { return m.fields }

// Get returns the value stored for field.
func (m *FieldMap) Get(field string) (FieldValue, bool) {
	v, ok := m.values[field]
	return v, ok
}

func (m *FieldMap) set(field string, v FieldValue) {
	if _, ok := m.values[field]; !ok {
		m.fields = append(m.fields, field)
	}
	m.values[field] = v
}

// MarshalJSON implements json.Marshaler.
func (m *FieldMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[f])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// AggregatedEntry is one row that carries at least one error.
type AggregatedEntry struct {
	EntryNumber int       `json:"entryNumber"`
	Fields      *FieldMap `json:"fields"`
}

// AggregatedErrors holds one entry per erroring row, in the order the rows'
// first errors were seen, and per-field error counts.
type AggregatedErrors struct {
	Entries     []AggregatedEntry `json:"aggregatedIssues"`
	IssueCounts map[string]int    `json:"issueCounts"`
}

// Entry finds the aggregated entry for an entry number.
func (a AggregatedErrors) Entry(entryNumber int) (AggregatedEntry, bool) {
	for _, e := range a.Entries {
		if e.EntryNumber == entryNumber {
			return e, true
		}
	}
	return AggregatedEntry{}, false
}

// AggregateErrors groups error-severity issues by row. Issues are matched
// to rows by their entry number; an issue with no entry number, or whose
// entry number names no row, is logged and skipped. The first error for a
// row seeds a FieldMap from every raw key of that row, resolved to logical
// fields, before the erroring field is overwritten with its issue.
func AggregateErrors(rows []Row, issues []Issue, log ColumnFieldLog) AggregatedErrors {
	out := AggregatedErrors{Entries: []AggregatedEntry{}, IssueCounts: map[string]int{}}
	if rows == nil {
		logger.Warn("no rows to aggregate errors against")
		return out
	}

	byEntry := make(map[int]int, len(rows))
	for i, row := range rows {
		if _, dup := byEntry[row.EntryNumber]; dup {
			logger.Warn("duplicate entry number, keeping first row", "entry_number", row.EntryNumber)
			continue
		}
		byEntry[row.EntryNumber] = i
	}
	seeded := make(map[int]int)

	for _, issue := range issues {
		if !issue.IsError() {
			continue
		}
		rowIdx, ok := byEntry[issue.EntryNumber]
		if issue.EntryNumber == 0 || !ok {
			logger.Warn("issue does not match any row",
				"entry_number", issue.EntryNumber, "field", issue.Field, "issue_type", issue.IssueType)
			continue
		}
		row := rows[rowIdx]

		entryIdx, ok := seeded[issue.EntryNumber]
		if !ok {
			fm := seedFieldMap(row, log)
			entryIdx = len(out.Entries)
			seeded[issue.EntryNumber] = entryIdx
			out.Entries = append(out.Entries, AggregatedEntry{EntryNumber: issue.EntryNumber, Fields: fm})
		}

		fm := out.Entries[entryIdx].Fields
		value := issue.Value
		if existing, ok := fm.Get(issue.Field); ok {
			value = existing.Value
		}
		description := issue.Description
		if description == "" {
			description = issue.Message
		}
		fm.set(issue.Field, FieldValue{
			Value: value,
			Issue: &IssueDetail{Type: issue.IssueType, Description: description},
		})
		out.IssueCounts[issue.Field]++
	}
	return out
}

// seedFieldMap resolves every raw key of row to its field. Columns that share
// a field are collapsed the same way as in RowsWithVerboseColumns.
func seedFieldMap(row Row, log ColumnFieldLog) *FieldMap {
	fm := newFieldMap()
	sources := make(map[string]string)
	for _, key := range row.ConvertedRow.Keys() {
		field := log.FieldFor(key)
		value := row.ConvertedRow.Value(key)
		if prev, dup := fm.Get(field); dup &&
			keepFirstDuplicate(field, sources[field], prev.Value, key, value, row.EntryNumber) {
			continue
		}
		sources[field] = key
		fm.set(field, FieldValue{Value: value})
	}
	return fm
}

// AggregatedErrors aggregates the page's rows using each row's own issue
// log. Issues without an entry number inherit their row's.
func (d *ResponseDetails) AggregatedErrors() AggregatedErrors {
	if !d.present("aggregated errors") {
		return AggregatedErrors{Entries: []AggregatedEntry{}, IssueCounts: map[string]int{}}
	}
	var issues []Issue
	for _, row := range d.rows {
		for _, issue := range row.IssueLogs {
			if issue.EntryNumber == 0 {
				issue.EntryNumber = row.EntryNumber
			}
			issues = append(issues, issue)
		}
	}
	return AggregateErrors(d.rows, issues, d.log)
}
