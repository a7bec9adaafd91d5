package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/results"
)

const defaultFailureMessage = "We could not check your data. Check the file or URL and try again."

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pageNumber := results.ParsePageNumber(chi.URLParam(r, "pageNumber"))

	// Request data and the page of rows are independent reads; the
	// column-field log is attached once both are back. A failed request may
	// have no details, so their error only matters once data says otherwise.
	var (
		data       *results.RequestData
		details    *results.ResponseDetails
		detailsErr error
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		data, err = s.Requests.GetRequestData(ctx, id)
		return err
	})
	g.Go(func() error {
		details, detailsErr = s.Requests.GetResponseDetails(ctx, id, requestapi.DetailsQuery{
			Offset: pageNumber * s.PageSize,
			Limit:  s.PageSize,
		}, nil)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.requestError(w, r, err)
		return
	}

	if !data.IsComplete() {
		http.Redirect(w, r, "/check/status/"+url.PathEscape(id), http.StatusFound)
		return
	}

	v := vars{
		"title":        "Your data",
		"dataset_name": s.Datasets.Name(data.Params.Dataset),
	}
	if data.IsFailed() {
		msg := defaultFailureMessage
		if f := data.Failure(); f != nil && f.Message != "" {
			msg = f.Message
		}
		v["failed"] = true
		v["failure_message"] = msg
		s.page(w, r, http.StatusOK, "results", v)
		return
	}
	if detailsErr != nil {
		s.requestError(w, r, detailsErr)
		return
	}

	details = results.NewResponseDetails(id, details.Rows(), data.ColumnFieldLog(), details.Window())
	state := details.Pagination(pageNumber, results.PaginationOptions{})
	if state.TotalPages > 0 && pageNumber >= state.TotalPages {
		s.notFound(w, r)
		return
	}

	fields := details.Fields()
	v["has_errors"] = data.HasErrors()
	v["error_summary"] = data.ErrorSummary(s.Messages)
	v["issue_counts"] = issueCountVars(data.AggregatedErrors().IssueCounts)
	v["total_rows"] = state.TotalResults
	v["fields"] = fields
	v["columns"] = headerColumns(details.Columns(), fields)
	v["mappings"] = mappingVars(details.FieldMappings())
	v["rows"] = rowVars(details.RowsWithVerboseColumns(false), fields)
	v["geometries"] = geometriesVar(details)
	v["pagination"] = paginationVars(details, state)

	s.page(w, r, http.StatusOK, "results", v)
}

// requestError answers 404 for unknown requests and 500 otherwise.
func (s *Server) requestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, requestapi.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	s.serverError(w, r, err)
}

func issueCountVars(counts map[string]int) []vars {
	names := make([]string, 0, len(counts))
	for field := range counts {
		names = append(names, field)
	}
	sort.Strings(names)
	out := make([]vars, 0, len(names))
	for _, field := range names {
		out = append(out, vars{"field": field, "count": counts[field]})
	}
	return out
}

// headerColumns labels the results table with source column names. Two
// fields sharing a source column would shift the headers off their cells, so
// the field names are used instead.
func headerColumns(columns, fields []string) []string {
	if len(columns) != len(fields) {
		logger.Debug("column names do not line up with fields", "columns", len(columns), "fields", len(fields))
		return fields
	}
	return columns
}

func mappingVars(mappings []results.FieldMapping) []vars {
	out := make([]vars, 0, len(mappings))
	for _, m := range mappings {
		var column interface{}
		if m.Column != nil {
			column = *m.Column
		}
		out = append(out, vars{"field": m.Field, "column": column})
	}
	return out
}

func rowVars(rows []results.VerboseRow, fields []string) []vars {
	out := make([]vars, 0, len(rows))
	for _, row := range rows {
		cells := make([]vars, 0, len(fields))
		for _, field := range fields {
			col, _ := row.Column(field)
			var msg interface{}
			if col.Error != nil {
				msg = col.Error.Message
			}
			cells = append(cells, vars{"value": col.Value, "error": msg})
		}
		out = append(out, vars{
			"entry_number": row.EntryNumber,
			"has_errors":   row.HasErrors,
			"cells":        cells,
		})
	}
	return out
}

// geometriesVar is the JSON array handed to the map, or nil when the rows
// carry no geometry.
func geometriesVar(d *results.ResponseDetails) interface{} {
	geoms, ok := d.Geometries()
	if !ok || len(geoms) == 0 {
		return nil
	}
	b, err := json.Marshal(geoms)
	if err != nil {
		return nil
	}
	return string(b)
}

func paginationVars(d *results.ResponseDetails, state results.PaginationState) vars {
	p := results.Paginator{ID: d.ID(), Window: d.Window()}
	items := make([]vars, 0, len(state.Items))
	for _, it := range state.Items {
		items = append(items, vars{"type": it.Type, "number": it.Number, "href": it.Href, "current": it.Current})
	}
	v := vars{"items": items, "previous_href": nil, "next_href": nil}
	if state.PreviousPage != nil {
		v["previous_href"] = p.Href(*state.PreviousPage, "")
	}
	if state.NextPage != nil {
		v["next_href"] = p.Href(*state.NextPage, "")
	}
	return v
}
