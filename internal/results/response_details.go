package results

import (
	"github.com/digital-land/submit/internal/pkg/logger"
)

// Annotations used in place of an Issue on a verbose column.
const (
	MissingValue          = "missing value"
	MissingColumnFieldLog = "no column-field log"
)

// ResponseDetails is one page of a request's row-level results.
type ResponseDetails struct {
	id     string
	rows   []Row
	log    ColumnFieldLog
	window PageWindow

	geometry geometryCache
}

// NewResponseDetails wraps a page of rows. A nil rows slice or nil log is
// treated as missing backend data rather than as an error.
func NewResponseDetails(id string, rows []Row, log ColumnFieldLog, window PageWindow) *ResponseDetails {
	return &ResponseDetails{id: id, rows: rows, log: log, window: window}
}

// ID is the request id the rows belong to.
func (d *ResponseDetails) ID() string { return d.id }

// Rows returns the raw rows.
func (d *ResponseDetails) Rows() []Row { return d.rows }

// ColumnFieldLog returns the mapping log, nil when the backend sent none.
func (d *ResponseDetails) ColumnFieldLog() ColumnFieldLog { return d.log }

// Window returns the pagination window reported by the backend.
func (d *ResponseDetails) Window() PageWindow { return d.window }

// FieldMapping pairs a logical field with the source column it came from.
// Column is nil when the field has no mapping entry.
type FieldMapping struct {
	Field  string  `json:"field"`
	Column *string `json:"column"`
}

// VerboseColumn is one field of a row resolved for display.
type VerboseColumn struct {
	Value  string       `json:"value"`
	Column string       `json:"column"`
	Field  string       `json:"field"`
	Error  *ColumnError `json:"error,omitempty"`
}

// ColumnError explains why a column is flagged. Issue is nil for the
// missing-value and missing-log annotations.
type ColumnError struct {
	Message string `json:"message"`
	Issue   *Issue `json:"issue,omitempty"`
}

// VerboseRow is a row with every field resolved.
type VerboseRow struct {
	EntryNumber int             `json:"entryNumber"`
	HasErrors   bool            `json:"hasErrors"`
	Columns     []VerboseColumn `json:"columns"`
}

// Column looks up a resolved column by logical field.
func (r VerboseRow) Column(field string) (VerboseColumn, bool) {
	for _, c := range r.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return VerboseColumn{}, false
}

func (d *ResponseDetails) present(op string) bool {
	if d.rows == nil {
		logger.Warn("response details missing", "request_id", d.id, "op", op)
		return false
	}
	return true
}

// Columns returns the display column names, one per field from Fields: the
// source column recorded in the column-field log, or the field itself when
// unmapped. Deduplicated in first-seen order.
func (d *ResponseDetails) Columns() []string {
	columns := []string{}
	if !d.present("columns") {
		return columns
	}
	seen := make(map[string]bool)
	for _, field := range d.Fields() {
		column := field
		if m, ok := d.log.ByField(field); ok && m.Column != "" {
			column = m.Column
		}
		if !seen[column] {
			seen[column] = true
			columns = append(columns, column)
		}
	}
	return columns
}

// Fields returns the logical field names across all rows, resolving raw
// keys through the column-field log. Deduplicated in first-seen order.
func (d *ResponseDetails) Fields() []string {
	fields := []string{}
	if !d.present("fields") {
		return fields
	}
	seen := make(map[string]bool)
	for _, row := range d.rows {
		for _, key := range row.ConvertedRow.Keys() {
			field := d.log.FieldFor(key)
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
		}
	}
	return fields
}

// FieldMappings pairs every field from Fields with its source column.
func (d *ResponseDetails) FieldMappings() []FieldMapping {
	fields := d.Fields()
	out := make([]FieldMapping, 0, len(fields))
	for _, field := range fields {
		fm := FieldMapping{Field: field}
		if m, ok := d.log.ByField(field); ok {
			column := m.Column
			fm.Column = &column
		}
		out = append(out, fm)
	}
	return out
}

// RowsWithVerboseColumns resolves every row, or only rows carrying at least
// one error-severity issue when errorsOnly is set.
func (d *ResponseDetails) RowsWithVerboseColumns(errorsOnly bool) []VerboseRow {
	out := []VerboseRow{}
	if !d.present("verbose rows") {
		return out
	}
	if d.log == nil {
		logger.Warn("column-field log missing", "request_id", d.id)
	}

	for _, row := range d.rows {
		hasErrors := row.ErrorCount() > 0
		if errorsOnly && !hasErrors {
			continue
		}
		vr := VerboseRow{EntryNumber: row.EntryNumber, HasErrors: hasErrors}
		index := make(map[string]int)
		for _, key := range row.ConvertedRow.Keys() {
			col := d.verboseColumn(row, key)
			if i, dup := index[col.Field]; dup {
				vr.Columns[i] = collapseDuplicate(vr.Columns[i], col, row.EntryNumber)
				continue
			}
			index[col.Field] = len(vr.Columns)
			vr.Columns = append(vr.Columns, col)
		}
		out = append(out, vr)
	}
	return out
}

func (d *ResponseDetails) verboseColumn(row Row, key string) VerboseColumn {
	col := VerboseColumn{Value: row.ConvertedRow.Value(key), Column: key, Field: key}

	if d.log == nil {
		col.Error = &ColumnError{Message: MissingColumnFieldLog}
		if issue, ok := row.IssueFor(key); ok {
			col.Error.Issue = &issue
		}
		return col
	}

	m, mapped := d.log.ByColumn(key)
	if mapped && m.Field != "" {
		col.Field = m.Field
	}
	if mapped && m.Missing {
		col.Error = &ColumnError{Message: MissingValue}
		return col
	}
	if issue, ok := row.IssueFor(col.Field); ok {
		col.Error = &ColumnError{Message: issue.Text(), Issue: &issue}
	}
	return col
}

// collapseDuplicate picks between two source columns that resolved to the
// same field.
func collapseDuplicate(first, second VerboseColumn, entryNumber int) VerboseColumn {
	if keepFirstDuplicate(first.Field, first.Column, first.Value, second.Column, second.Value, entryNumber) {
		return first
	}
	return second
}

// keepFirstDuplicate decides which of two source columns mapped to one field
// supplies its value. A non-empty value wins. When both are non-empty and
// differ the first column is kept and the conflict is logged.
func keepFirstDuplicate(field, firstColumn, firstValue, secondColumn, secondValue string, entryNumber int) bool {
	switch {
	case firstValue == "" && secondValue != "":
		return false
	case firstValue != "" && secondValue != "" && firstValue != secondValue:
		logger.Error("conflicting values for duplicate field mapping",
			"field", field,
			"kept_column", firstColumn,
			"dropped_column", secondColumn,
			"entry_number", entryNumber)
	}
	return true
}
