package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/wizard"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to a temp file.
const multipartMemory = 32 << 20

// statusRefreshSeconds is the meta refresh interval on the status page.
const statusRefreshSeconds = 2

var checkTitles = map[string]string{
	wizard.StepDataset:      "Which dataset do you want to check?",
	wizard.StepGeometryType: "How are the geometries given?",
	wizard.StepUploadMethod: "How do you want to provide your data?",
	wizard.StepURL:          "URL",
	wizard.StepUpload:       "Upload data",
}

func checkPath(step string) string { return "/check/" + step }

func (s *Server) showCheckStep(step string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(r)
		if redirect, ok := s.check.Reachable(step, sess); !ok {
			http.Redirect(w, r, checkPath(redirect), http.StatusFound)
			return
		}
		if step == wizard.StepUpload && s.Uploads == nil {
			s.notFound(w, r)
			return
		}
		s.renderCheckStep(w, r, http.StatusOK, step, s.check.Answers(sess), nil)
	}
}

func (s *Server) renderCheckStep(w http.ResponseWriter, r *http.Request, status int, step string, values wizard.Values, errs wizard.Errors) {
	st, _ := s.check.Step(step)
	fields := st.Fields
	if step == wizard.StepUpload {
		fields = nil
	}
	v := formVars(checkTitles[step], values, fields, errs)

	answers := s.check.Answers(sessionFor(r))
	v["dataset_name"] = s.Datasets.Name(answers.Get(wizard.FieldDataset))

	switch step {
	case wizard.StepDataset:
		v["datasets"] = s.datasetOptions(values.Get(wizard.FieldDataset))
	case wizard.StepUploadMethod:
		v["upload_enabled"] = s.Uploads != nil
	case wizard.StepUpload:
		v["max_size"] = s.MaxUploadSize
	}
	s.page(w, r, status, step, v)
}

func (s *Server) datasetOptions(selected string) []vars {
	out := make([]vars, 0)
	for _, d := range s.Datasets.Sorted() {
		out = append(out, vars{"slug": d.Slug, "name": d.Name, "selected": d.Slug == selected})
	}
	return out
}

func (s *Server) submitCheckStep(step string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(r)
		if redirect, ok := s.check.Reachable(step, sess); !ok {
			httputil.SeeOther(w, r, checkPath(redirect))
			return
		}
		if err := r.ParseForm(); err != nil {
			s.badRequest(w, r, err)
			return
		}

		next, err := s.check.Submit(step, r.PostForm, sess)
		var verrs wizard.Errors
		if errors.As(err, &verrs) {
			s.renderCheckStep(w, r, http.StatusBadRequest, step, r.PostForm, verrs)
			return
		}
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		if step == wizard.StepURL {
			s.createURLRequest(w, r)
			return
		}
		if !s.saveSession(w, r, sess) {
			return
		}
		httputil.SeeOther(w, r, checkPath(next))
	}
}

func (s *Server) createURLRequest(w http.ResponseWriter, r *http.Request) {
	sess := sessionFor(r)
	a := s.check.Answers(sess)
	dataset := a.Get(wizard.FieldDataset)
	d, _ := s.Datasets.Get(dataset)

	id, err := s.Requests.PostURLRequest(r.Context(), requestapi.URLRequest{
		Dataset:    dataset,
		Collection: d.Collection,
		URL:        a.Get(wizard.FieldURL),
		GeomType:   a.Get(wizard.FieldGeomType),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.startedCheck(w, r, id)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFor(r)
	if redirect, ok := s.check.Reachable(wizard.StepUpload, sess); !ok {
		httputil.SeeOther(w, r, checkPath(redirect))
		return
	}
	if s.Uploads == nil {
		s.notFound(w, r)
		return
	}
	answers := s.check.Answers(sess)
	uploadErr := func(err error) {
		var verrs wizard.Errors
		if errors.As(err, &verrs) {
			s.renderCheckStep(w, r, http.StatusBadRequest, wizard.StepUpload, answers, verrs)
			return
		}
		s.serverError(w, r, err)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			uploadErr(wizard.ValidateUpload(wizard.FieldFile, "upload.csv", s.MaxUploadSize+1, s.MaxUploadSize))
			return
		}
		uploadErr(wizard.ValidateUpload(wizard.FieldFile, "", 0, s.MaxUploadSize))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(wizard.FieldFile)
	if errors.Is(err, http.ErrMissingFile) {
		uploadErr(wizard.ValidateUpload(wizard.FieldFile, "", 0, s.MaxUploadSize))
		return
	}
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	defer file.Close()

	if err := wizard.ValidateUpload(wizard.FieldFile, header.Filename, header.Size, s.MaxUploadSize); err != nil {
		uploadErr(err)
		return
	}

	key, err := s.Uploads.Put(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	logger.Info("upload staged", "key", key, "size", header.Size)

	dataset := answers.Get(wizard.FieldDataset)
	d, _ := s.Datasets.Get(dataset)
	id, err := s.Requests.PostFileRequest(r.Context(), requestapi.FileRequest{
		Dataset:          dataset,
		Collection:       d.Collection,
		OriginalFilename: header.Filename,
		UploadedFilename: key,
		GeomType:         answers.Get(wizard.FieldGeomType),
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.startedCheck(w, r, id)
}

// startedCheck records the request and sends the user to its status page.
func (s *Server) startedCheck(w http.ResponseWriter, r *http.Request, id string) {
	sess := sessionFor(r)
	sess.Set(s.check.Key(wizard.FieldRequestID), id)
	if !s.saveSession(w, r, sess) {
		return
	}
	httputil.SeeOther(w, r, "/check/status/"+url.PathEscape(id))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.Requests.GetRequestData(r.Context(), id)
	if err != nil {
		s.requestError(w, r, err)
		return
	}

	v := vars{
		"title":        "Checking your data",
		"request_id":   id,
		"status":       string(data.Status),
		"complete":     data.IsComplete(),
		"dataset_name": s.Datasets.Name(data.Params.Dataset),
	}
	if !data.IsComplete() {
		v["refresh"] = statusRefreshSeconds
	}
	s.page(w, r, http.StatusOK, "status", v)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	logger.Warn("bad request", "path", r.URL.Path, "error", err)
	s.page(w, r, http.StatusBadRequest, "error", vars{
		"title":   "Sorry, there is a problem with the service",
		"heading": "Sorry, there is a problem with the service",
		"message": "The form could not be read. Go back and try again.",
	})
}
