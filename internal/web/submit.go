package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/digital-land/submit/internal/notify"
	"github.com/digital-land/submit/internal/pkg/httputil"
	"github.com/digital-land/submit/internal/pkg/logger"
	"github.com/digital-land/submit/internal/wizard"
)

// Keys for the last submission, kept outside the journey so Reset does not
// remove them before the confirmation page is shown.
const (
	confirmationReferenceKey = "confirmation.reference"
	confirmationEmailKey     = "confirmation.email"
)

var submitTitles = map[string]string{
	wizard.StepLPADetails:      "Your details",
	wizard.StepDatasetDetails:  "Dataset details",
	wizard.StepEndpointDetails: "Endpoint URL",
	wizard.StepCheckAnswers:    "Check your answers",
}

type formField struct {
	name, label, kind string
}

var lpaFields = []formField{
	{wizard.FieldName, "Full name", "text"},
	{wizard.FieldEmail, "Email address", "email"},
	{wizard.FieldOrganisation, "Organisation", "text"},
}

func submitPath(step string) string { return "/submit/" + step }

func (s *Server) showSubmitStep(step string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(r)
		if redirect, ok := s.submit.Reachable(step, sess); !ok {
			http.Redirect(w, r, submitPath(redirect), http.StatusFound)
			return
		}
		s.renderSubmitStep(w, r, http.StatusOK, step, s.submit.Answers(sess), nil)
	}
}

func (s *Server) renderSubmitStep(w http.ResponseWriter, r *http.Request, status int, step string, values wizard.Values, errs wizard.Errors) {
	st, _ := s.submit.Step(step)
	v := formVars(submitTitles[step], values, st.Fields, errs)

	switch step {
	case wizard.StepLPADetails:
		fields := make([]vars, 0, len(lpaFields))
		for _, f := range lpaFields {
			var msg interface{}
			if m := errs.For(f.name); m != "" {
				msg = m
			}
			fields = append(fields, vars{
				"name":  f.name,
				"label": f.label,
				"type":  f.kind,
				"value": values.Get(f.name),
				"error": msg,
			})
		}
		v["form_fields"] = fields
	case wizard.StepDatasetDetails:
		v["datasets"] = s.datasetOptions(values.Get(wizard.FieldDataset))
	case wizard.StepEndpointDetails:
		v["dataset_name"] = s.Datasets.Name(s.submit.Answers(sessionFor(r)).Get(wizard.FieldDataset))
	}
	s.page(w, r, status, step, v)
}

func (s *Server) submitSubmitStep(step string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFor(r)
		if redirect, ok := s.submit.Reachable(step, sess); !ok {
			httputil.SeeOther(w, r, submitPath(redirect))
			return
		}
		if err := r.ParseForm(); err != nil {
			s.badRequest(w, r, err)
			return
		}

		next, err := s.submit.Submit(step, r.PostForm, sess)
		var verrs wizard.Errors
		if errors.As(err, &verrs) {
			s.renderSubmitStep(w, r, http.StatusBadRequest, step, r.PostForm, verrs)
			return
		}
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !s.saveSession(w, r, sess) {
			return
		}
		httputil.SeeOther(w, r, submitPath(next))
	}
}

func (s *Server) showCheckAnswers(w http.ResponseWriter, r *http.Request) {
	sess := sessionFor(r)
	if redirect, ok := s.submit.Reachable(wizard.StepCheckAnswers, sess); !ok {
		http.Redirect(w, r, submitPath(redirect), http.StatusFound)
		return
	}
	a := s.submit.Answers(sess)
	row := func(label, value, step string) vars {
		return vars{"label": label, "value": value, "change": submitPath(step)}
	}
	s.page(w, r, http.StatusOK, "check-answers", vars{
		"title": submitTitles[wizard.StepCheckAnswers],
		"answers": []vars{
			row("Full name", a.Get(wizard.FieldName), wizard.StepLPADetails),
			row("Email address", a.Get(wizard.FieldEmail), wizard.StepLPADetails),
			row("Organisation", a.Get(wizard.FieldOrganisation), wizard.StepLPADetails),
			row("Dataset", s.Datasets.Name(a.Get(wizard.FieldDataset)), wizard.StepDatasetDetails),
			row("Documentation URL", a.Get(wizard.FieldDocumentationURL), wizard.StepDatasetDetails),
			row("Endpoint URL", a.Get(wizard.FieldEndpointURL), wizard.StepEndpointDetails),
		},
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	sess := sessionFor(r)
	if path, complete := s.submit.Path(sess); !complete {
		httputil.SeeOther(w, r, submitPath(path[len(path)-1]))
		return
	}
	a := s.submit.Answers(sess)
	dataset := a.Get(wizard.FieldDataset)
	sub := notify.Submission{
		Reference:        newReference(),
		Name:             a.Get(wizard.FieldName),
		Email:            a.Get(wizard.FieldEmail),
		Organisation:     a.Get(wizard.FieldOrganisation),
		Dataset:          dataset,
		DatasetName:      s.Datasets.Name(dataset),
		DocumentationURL: a.Get(wizard.FieldDocumentationURL),
		EndpointURL:      a.Get(wizard.FieldEndpointURL),
		SubmittedAt:      s.now(),
	}
	if err := s.Notifier.NotifySubmission(r.Context(), sub); err != nil {
		s.serverError(w, r, err)
		return
	}
	logger.Info("dataset submitted", "reference", sub.Reference, "dataset", dataset, "organisation", sub.Organisation)

	s.submit.Reset(sess)
	sess.Set(confirmationReferenceKey, sub.Reference)
	sess.Set(confirmationEmailKey, sub.Email)
	if !s.saveSession(w, r, sess) {
		return
	}
	httputil.SeeOther(w, r, submitPath(wizard.StepConfirmation))
}

func (s *Server) showConfirmation(w http.ResponseWriter, r *http.Request) {
	sess := sessionFor(r)
	ref := sess.Get(confirmationReferenceKey)
	if ref == "" {
		http.Redirect(w, r, submitPath(s.submit.First()), http.StatusFound)
		return
	}
	s.page(w, r, http.StatusOK, "confirmation", vars{
		"title":     "Dataset submitted",
		"reference": ref,
		"email":     sess.Get(confirmationEmailKey),
	})
}

// newReference is the reference quoted to the user and the team.
func newReference() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SUB-" + strings.ToUpper(id[:10])
}
