package results

import (
	"strings"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// geometryExtractor pulls a WKT string out of a row.
type geometryExtractor func(Record) string

// geometryProbe recognises a row shape by its lower-cased keys and builds
// an extractor for it. keys maps lower-cased key to the key as sent.
type geometryProbe struct {
	name  string
	match func(keys map[string]string) bool
	build func(keys map[string]string) geometryExtractor
}

func singleColumn(name string) geometryProbe {
	return geometryProbe{
		name: name,
		match: func(keys map[string]string) bool {
			_, ok := keys[name]
			return ok
		},
		build: func(keys map[string]string) geometryExtractor {
			key := keys[name]
			return func(r Record) string { return r.Value(key) }
		},
	}
}

// geometryProbes is checked in priority order.
var geometryProbes = []geometryProbe{
	singleColumn("point"),
	singleColumn("geometry"),
	singleColumn("wkt"),
	{
		name: "geox/geoy",
		match: func(keys map[string]string) bool {
			_, x := keys["geox"]
			_, y := keys["geoy"]
			return x && y
		},
		build: func(keys map[string]string) geometryExtractor {
			xKey, yKey := keys["geox"], keys["geoy"]
			return func(r Record) string {
				x := strings.TrimSpace(r.Value(xKey))
				y := strings.TrimSpace(r.Value(yKey))
				if x == "" || y == "" {
					return ""
				}
				return "POINT (" + x + " " + y + ")"
			}
		},
	},
}

// geometryCache memoises the extractor for one row shape.
type geometryCache struct {
	shape    string
	resolved bool
	extract  geometryExtractor
}

func rowShape(r Record) string { return strings.Join(r.Keys(), "\x1f") }

func resolveGeometryExtractor(r Record) (geometryExtractor, string) {
	keys := make(map[string]string, r.Len())
	for _, k := range r.Keys() {
		lower := strings.ToLower(k)
		if _, taken := keys[lower]; !taken {
			keys[lower] = k
		}
	}
	for _, probe := range geometryProbes {
		if probe.match(keys) {
			return probe.build(keys), probe.name
		}
	}
	return nil, ""
}

// GeometryKey returns the source column mapped to the point field, falling
// back to the geometry field.
func (d *ResponseDetails) GeometryKey() (string, bool) {
	for _, field := range []string{"point", "geometry"} {
		if m, ok := d.log.ByField(field); ok {
			return m.Column, true
		}
	}
	return "", false
}

// Geometries returns the non-blank WKT geometries of the page's rows. The
// boolean is false when there are no rows or no recognisable geometry
// column; the extractor is chosen from the first row's keys.
func (d *ResponseDetails) Geometries() ([]string, bool) {
	if len(d.rows) == 0 {
		return nil, false
	}

	first := d.rows[0].ConvertedRow
	shape := rowShape(first)
	if !d.geometry.resolved || d.geometry.shape != shape {
		extract, name := resolveGeometryExtractor(first)
		d.geometry = geometryCache{shape: shape, resolved: true, extract: extract}
		if extract != nil {
			logger.Debug("geometry column resolved", "request_id", d.id, "probe", name)
		}
	}
	if d.geometry.extract == nil {
		logger.Debug("no geometry column found", "request_id", d.id)
		return nil, false
	}

	geometries := []string{}
	for _, row := range d.rows {
		g := d.geometry.extract(row.ConvertedRow)
		if strings.TrimSpace(g) != "" {
			geometries = append(geometries, g)
		}
	}
	return geometries, true
}
