package results

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRows(t *testing.T, s string) []Row {
	t.Helper()
	var rows []Row
	require.NoError(t, json.Unmarshal([]byte(s), &rows))
	return rows
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.Init("debug", &buf)
	t.Cleanup(func() { logger.Init("info", nil) })
	return &buf
}

const treeRows = `[
	{"entry_number": 1, "converted_row": {"ref_col": "T1", "start-date": "2020-01-01", "GeoX": "1", "GeoY": "2"},
	 "issue_logs": []},
	{"entry_number": 2, "converted_row": {"ref_col": "", "start-date": "not a date", "GeoX": "", "GeoY": "4"},
	 "issue_logs": [{"severity": "error", "field": "start-date", "issue-type": "invalid date", "message": "start-date must be a real date"},
	                {"severity": "warning", "field": "reference", "issue-type": "missing", "message": "reference is blank"}]},
	{"entry_number": 3, "converted_row": {"ref_col": "T3", "start-date": "2021-02-02", "GeoX": "5", "GeoY": "6"},
	 "issue_logs": [{"severity": "notice", "field": "start-date", "issue-type": "future", "message": "date is in the future"}]}
]`

var treeLog = ColumnFieldLog{
	{Column: "ref_col", Field: "reference"},
	{Column: "start-date", Field: "start-date"},
}

func TestColumnsPreferMappedColumn(t *testing.T) {
	d := NewResponseDetails("r", decodeRows(t, `[{"entry_number":1,"converted_row":{"start-date":"x","reference":"y","name":"z"}}]`),
		ColumnFieldLog{{Column: "start-date", Field: "start-date"}, {Column: "Ref", Field: "reference"}}, PageWindow{})

	assert.Equal(t, []string{"start-date", "Ref", "name"}, d.Columns())
}

func TestColumnsEmpty(t *testing.T) {
	d := NewResponseDetails("r", []Row{}, treeLog, PageWindow{})
	assert.Equal(t, []string{}, d.Columns())
}

func TestColumnsMissingResponse(t *testing.T) {
	logs := captureLogs(t)
	d := NewResponseDetails("r", nil, treeLog, PageWindow{})

	assert.Empty(t, d.Columns())
	assert.Empty(t, d.Fields())
	assert.Empty(t, d.RowsWithVerboseColumns(false))
	assert.Contains(t, logs.String(), "response details missing")
}

func TestFieldsResolvedThroughLog(t *testing.T) {
	d := NewResponseDetails("r", decodeRows(t, treeRows), treeLog, PageWindow{})
	assert.Equal(t, []string{"reference", "start-date", "GeoX", "GeoY"}, d.Fields())
}

func TestFieldMappings(t *testing.T) {
	d := NewResponseDetails("r", decodeRows(t, treeRows), treeLog, PageWindow{})
	mappings := d.FieldMappings()

	require.Len(t, mappings, 4)
	assert.Equal(t, "reference", mappings[0].Field)
	require.NotNil(t, mappings[0].Column)
	assert.Equal(t, "ref_col", *mappings[0].Column)
	assert.Equal(t, "GeoX", mappings[2].Field)
	assert.Nil(t, mappings[2].Column)

	out, err := json.Marshal(mappings[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"field":"GeoX","column":null}`, string(out))
}

func TestRowsWithVerboseColumns(t *testing.T) {
	d := NewResponseDetails("r", decodeRows(t, treeRows), treeLog, PageWindow{})

	all := d.RowsWithVerboseColumns(false)
	require.Len(t, all, 3)
	assert.False(t, all[0].HasErrors)
	assert.True(t, all[1].HasErrors)

	ref, ok := all[0].Column("reference")
	require.True(t, ok)
	assert.Equal(t, VerboseColumn{Value: "T1", Column: "ref_col", Field: "reference"}, ref)

	date, ok := all[1].Column("start-date")
	require.True(t, ok)
	require.NotNil(t, date.Error)
	assert.Equal(t, "start-date must be a real date", date.Error.Message)
	require.NotNil(t, date.Error.Issue)
	assert.Equal(t, "invalid date", date.Error.Issue.IssueType)

	// non-error issues still annotate the column
	ref2, _ := all[1].Column("reference")
	require.NotNil(t, ref2.Error)
	assert.Equal(t, "reference is blank", ref2.Error.Message)

	errorsOnly := d.RowsWithVerboseColumns(true)
	require.Len(t, errorsOnly, 1)
	assert.Equal(t, 2, errorsOnly[0].EntryNumber)
}

func TestVerboseColumnMissingValue(t *testing.T) {
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"name":"Oak","organisation":""}}]`)
	log := ColumnFieldLog{{Column: "name", Field: "name"}, {Column: "organisation", Field: "organisation", Missing: true}}
	d := NewResponseDetails("r", rows, log, PageWindow{})

	col, ok := d.RowsWithVerboseColumns(false)[0].Column("organisation")
	require.True(t, ok)
	require.NotNil(t, col.Error)
	assert.Equal(t, MissingValue, col.Error.Message)
	assert.Nil(t, col.Error.Issue)
}

func TestVerboseColumnsWithoutLog(t *testing.T) {
	logs := captureLogs(t)
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"ref_col":"A"},"issue_logs":[{"severity":"error","field":"ref_col","message":"bad"}]}]`)
	d := NewResponseDetails("r", rows, nil, PageWindow{})

	vr := d.RowsWithVerboseColumns(false)
	require.Len(t, vr, 1)
	col := vr[0].Columns[0]
	assert.Equal(t, "ref_col", col.Field)
	assert.Equal(t, "ref_col", col.Column)
	require.NotNil(t, col.Error)
	assert.Equal(t, MissingColumnFieldLog, col.Error.Message)
	require.NotNil(t, col.Error.Issue)
	assert.Equal(t, "bad", col.Error.Issue.Message)
	assert.Contains(t, logs.String(), "column-field log missing")
}

func TestDuplicateMappedFieldPrefersNonEmpty(t *testing.T) {
	log := ColumnFieldLog{{Column: "A", Field: "F"}, {Column: "B", Field: "F"}}

	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"A":"x","B":""}},
	                        {"entry_number":2,"converted_row":{"A":"","B":"y"}}]`)
	d := NewResponseDetails("r", rows, log, PageWindow{})
	vr := d.RowsWithVerboseColumns(false)

	require.Len(t, vr[0].Columns, 1)
	assert.Equal(t, "x", vr[0].Columns[0].Value)
	assert.Equal(t, "A", vr[0].Columns[0].Column)

	require.Len(t, vr[1].Columns, 1)
	assert.Equal(t, "y", vr[1].Columns[0].Value)
	assert.Equal(t, "B", vr[1].Columns[0].Column)
}

func TestDuplicateMappedFieldConflictKeepsFirst(t *testing.T) {
	logs := captureLogs(t)
	log := ColumnFieldLog{{Column: "A", Field: "F"}, {Column: "B", Field: "F"}}
	rows := decodeRows(t, `[{"entry_number":7,"converted_row":{"A":"x","B":"z"}}]`)
	d := NewResponseDetails("r", rows, log, PageWindow{})

	vr := d.RowsWithVerboseColumns(false)
	require.Len(t, vr[0].Columns, 1)
	assert.Equal(t, "x", vr[0].Columns[0].Value)
	assert.Contains(t, logs.String(), "conflicting values for duplicate field mapping")
	assert.Contains(t, logs.String(), `"level":"error"`)
}

func TestGeometryKey(t *testing.T) {
	d := NewResponseDetails("r", nil, ColumnFieldLog{{Column: "WKT", Field: "geometry"}, {Column: "pt", Field: "point"}}, PageWindow{})
	key, ok := d.GeometryKey()
	assert.True(t, ok)
	assert.Equal(t, "pt", key)

	d = NewResponseDetails("r", nil, ColumnFieldLog{{Column: "WKT", Field: "geometry"}}, PageWindow{})
	key, ok = d.GeometryKey()
	assert.True(t, ok)
	assert.Equal(t, "WKT", key)

	d = NewResponseDetails("r", nil, nil, PageWindow{})
	_, ok = d.GeometryKey()
	assert.False(t, ok)
}

func TestGeometriesFromGeoXGeoY(t *testing.T) {
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"GEOX":"1","geoY":"2"}}]`)
	d := NewResponseDetails("r", rows, nil, PageWindow{})

	geoms, ok := d.Geometries()
	require.True(t, ok)
	assert.Equal(t, []string{"POINT (1 2)"}, geoms)
}

func TestGeometriesSkipsBlank(t *testing.T) {
	d := NewResponseDetails("r", decodeRows(t, treeRows), treeLog, PageWindow{})
	geoms, ok := d.Geometries()
	require.True(t, ok)
	assert.Equal(t, []string{"POINT (1 2)", "POINT (5 6)"}, geoms)
}

func TestGeometriesPriority(t *testing.T) {
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"WKT":"POINT (9 9)","Geometry":"POLYGON ((0 0, 1 0, 1 1, 0 0))","geox":"1","geoy":"1"}},
	                        {"entry_number":2,"converted_row":{"WKT":"","Geometry":"  ","geox":"1","geoy":"1"}}]`)
	d := NewResponseDetails("r", rows, nil, PageWindow{})
	geoms, ok := d.Geometries()
	require.True(t, ok)
	assert.Equal(t, []string{"POLYGON ((0 0, 1 0, 1 1, 0 0))"}, geoms)
}

func TestGeometriesUndefined(t *testing.T) {
	logs := captureLogs(t)

	_, ok := NewResponseDetails("r", []Row{}, nil, PageWindow{}).Geometries()
	assert.False(t, ok)

	_, ok = NewResponseDetails("r", nil, nil, PageWindow{}).Geometries()
	assert.False(t, ok)

	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"name":"oak"}}]`)
	_, ok = NewResponseDetails("r", rows, nil, PageWindow{}).Geometries()
	assert.False(t, ok)
	assert.Contains(t, logs.String(), "no geometry column found")
}

func TestGeometryExtractorMemoisedPerShape(t *testing.T) {
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"point":"POINT (1 1)"}}]`)
	d := NewResponseDetails("r", rows, nil, PageWindow{})

	_, ok := d.Geometries()
	require.True(t, ok)
	shape := d.geometry.shape
	_, _ = d.Geometries()
	assert.Equal(t, shape, d.geometry.shape)

	d.rows = decodeRows(t, `[{"entry_number":1,"converted_row":{"wkt":"POINT (2 2)"}}]`)
	geoms, ok := d.Geometries()
	require.True(t, ok)
	assert.Equal(t, []string{"POINT (2 2)"}, geoms)
}

func TestColumnsOnePerFieldWithDuplicateMapping(t *testing.T) {
	rows := decodeRows(t, `[{"entry_number":1,"converted_row":{"A":"x","B":"","name":"oak"}}]`)
	d := NewResponseDetails("r", rows, ColumnFieldLog{{Column: "A", Field: "F"}, {Column: "B", Field: "F"}}, PageWindow{})

	assert.Equal(t, []string{"F", "name"}, d.Fields())
	assert.Equal(t, []string{"A", "name"}, d.Columns())

	vr := d.RowsWithVerboseColumns(false)
	require.Len(t, vr, 1)
	assert.Len(t, vr[0].Columns, len(d.Columns()))
}
