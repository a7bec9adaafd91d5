package web

import (
	"embed"
	"fmt"
	"net/http"

	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/pkg/render"
	"github.com/digital-land/submit/internal/wizard"
)

//go:embed templates/*.liquid
var templateFS embed.FS

type vars = map[string]interface{}

// pages renders a body template inside the shared layout.
type pages struct {
	engine *render.Engine
	layout string
}

func newPages(engine *render.Engine) (*pages, error) {
	layout, err := templateFS.ReadFile("templates/layout.liquid")
	if err != nil {
		return nil, fmt.Errorf("layout template: %w", err)
	}
	p := &pages{engine: engine, layout: string(layout)}

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("page templates: %w", err)
	}
	for _, e := range entries {
		src, err := templateFS.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := engine.Parse(string(src)); err != nil {
			return nil, fmt.Errorf("page template %s: %w", e.Name(), err)
		}
	}
	return p, nil
}

func (p *pages) render(name string, v vars) (string, error) {
	src, err := templateFS.ReadFile("templates/" + name + ".liquid")
	if err != nil {
		return "", fmt.Errorf("page template %s: %w", name, err)
	}
	if v == nil {
		v = vars{}
	}
	if _, ok := v["error_list"]; !ok {
		v["error_list"] = []vars{}
	}
	body, err := p.engine.Render("page:"+name, string(src), v)
	if err != nil {
		return "", err
	}
	v["content"] = body
	return p.engine.Render("page:layout", p.layout, v)
}

// page writes a rendered page, falling back to the plain 500 text when the
// template itself fails.
func (s *Server) page(w http.ResponseWriter, r *http.Request, status int, name string, v vars) {
	out, err := s.pages.render(name, v)
	if err != nil {
		httputil.LogInternal(r, err)
		http.Error(w, "Sorry, there is a problem with the service", http.StatusInternalServerError)
		return
	}
	httputil.HTML(w, status, out)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, http.StatusNotFound, "error", vars{
		"title":   "Page not found",
		"heading": "Page not found",
		"message": "If you typed the web address, check it is correct.",
	})
}

// serverError logs err and shows a generic page; internals never reach the
// user.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.LogInternal(r, err)
	s.page(w, r, http.StatusInternalServerError, "error", vars{
		"title":   "Sorry, there is a problem with the service",
		"heading": "Sorry, there is a problem with the service",
		"message": "Try again later.",
	})
}

// formVars binds stored or submitted values and field errors for a form
// template.
func formVars(title string, values wizard.Values, fields []string, errs wizard.Errors) vars {
	vals := vars{}
	for _, f := range fields {
		vals[f] = values.Get(f)
	}
	errMap := vars{}
	errList := make([]vars, 0, len(errs))
	for _, fe := range errs {
		errMap[fe.Field] = fe.Message
		errList = append(errList, vars{"field": fe.Field, "message": fe.Message})
	}
	return vars{
		"title":      title,
		"values":     vals,
		"errors":     errMap,
		"error_list": errList,
	}
}
