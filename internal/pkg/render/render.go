// Package render wraps the Liquid template engine shared by the web pages,
// issue messages and notification emails.
package render

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/osteele/liquid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/digital-land/submit/internal/pkg/logger"
)

// Engine renders Liquid templates, caching parsed templates by key.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// New creates an engine with the service's custom filters registered.
func New() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// {{ name | default: "not provided" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if blank(value) {
			return defaultVal
		}
		return value
	})

	e.engine.RegisterFilter("titlecase", func(s string) string {
		return cases.Title(language.BritishEnglish).String(strings.ToLower(s))
	})

	e.engine.RegisterFilter("urlencode", func(s string) string {
		return url.PathEscape(s)
	})

	e.engine.RegisterFilter("escape", func(value interface{}) string {
		if value == nil {
			return ""
		}
		return html.EscapeString(fmt.Sprintf("%v", value))
	})

	// {{ total | number_with_delimiter }}
	e.engine.RegisterFilter("number_with_delimiter", func(value interface{}) string {
		n, ok := toInt64(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		return humanize.Comma(n)
	})

	// {{ size | filesize }}
	e.engine.RegisterFilter("filesize", func(value interface{}) string {
		n, ok := toInt64(value)
		if !ok || n < 0 {
			return fmt.Sprintf("%v", value)
		}
		return humanize.Bytes(uint64(n))
	})

	// {{ count | pluralize: "row", "rows" }}
	e.engine.RegisterFilter("pluralize", func(value interface{}, singular, plural string) string {
		if n, ok := toInt64(value); ok && n == 1 {
			return singular
		}
		return plural
	})

	e.engine.RegisterFilter("present", func(value interface{}) bool {
		return !blank(value)
	})

	e.engine.RegisterFilter("blank", blank)
}

// Parse compiles a template and returns any syntax error.
func (e *Engine) Parse(src string) error {
	_, err := e.engine.ParseString(src)
	return err
}

// Render renders src with vars. A non-empty cacheKey stores the parsed
// template so later calls with the same key skip parsing.
func (e *Engine) Render(cacheKey, src string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			return render(cached.(*liquid.Template), cacheKey, vars)
		}
	}

	tpl, err := e.engine.ParseString(src)
	if err != nil {
		logger.Error("template parse failed", "template", cacheKey, "error", err)
		return "", fmt.Errorf("parse template %q: %w", cacheKey, err)
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}
	return render(tpl, cacheKey, vars)
}

func render(tpl *liquid.Template, key string, vars map[string]interface{}) (string, error) {
	out, err := tpl.RenderString(vars)
	if err != nil {
		logger.Error("template render failed", "template", key, "error", err)
		return "", fmt.Errorf("render template %q: %w", key, err)
	}
	return out, nil
}

func blank(value interface{}) bool {
	if value == nil {
		return true
	}
	s := fmt.Sprintf("%v", value)
	return strings.TrimSpace(s) == "" || s == "<nil>"
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}
