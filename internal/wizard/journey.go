package wizard

import (
	"fmt"
	"strings"

	"github.com/digital-land/submit/internal/datasets"
)

// State is where a journey keeps answers between pages.
type State interface {
	Get(key string) string
	Set(key, value string)
}

// Step is one page of a journey.
type Step struct {
	Name   string
	Fields []string
	Rules  []Rule
	// Next names the following step from the stored answers. An empty
	// result ends the journey.
	Next func(st Values) string
}

// Journey is an ordered set of steps whose answers are stored under
// "{name}.{field}".
type Journey struct {
	Name  string
	first string
	steps map[string]Step
	order []string
}

func newJourney(name string, steps ...Step) *Journey {
	j := &Journey{Name: name, steps: make(map[string]Step, len(steps))}
	for _, s := range steps {
		if j.first == "" {
			j.first = s.Name
		}
		j.steps[s.Name] = s
		j.order = append(j.order, s.Name)
	}
	return j
}

// First is the journey's opening step.
func (j *Journey) First() string { return j.first }

// Step looks up a step by name.
func (j *Journey) Step(name string) (Step, bool) {
	s, ok := j.steps[name]
	return s, ok
}

// Key is the state key for a field of this journey.
func (j *Journey) Key(field string) string {
	return j.Name + "." + field
}

// Answers reads this journey's stored answers as plain field values.
func (j *Journey) Answers(st Values) Values {
	return answers{j: j, st: st}
}

type answers struct {
	j  *Journey
	st Values
}

func (a answers) Get(field string) string { return a.st.Get(a.j.Key(field)) }

// Submit validates form values for step, stores them and returns the next
// step. Validation failures return Errors and store nothing.
func (j *Journey) Submit(step string, form Values, st State) (string, error) {
	s, ok := j.steps[step]
	if !ok {
		return "", fmt.Errorf("journey %s has no step %q", j.Name, step)
	}
	if err := Validate(form, s.Rules); err != nil {
		return "", err
	}
	for _, field := range s.Fields {
		st.Set(j.Key(field), strings.TrimSpace(form.Get(field)))
	}
	if s.Next == nil {
		return "", nil
	}
	return s.Next(j.Answers(st)), nil
}

// Path follows Next from the first step over the stored answers and
// returns the visited steps, stopping at the first incomplete one.
func (j *Journey) Path(st Values) (path []string, complete bool) {
	a := j.Answers(st)
	seen := map[string]bool{}
	name := j.first
	for name != "" && !seen[name] {
		seen[name] = true
		s, ok := j.steps[name]
		if !ok {
			return path, false
		}
		path = append(path, name)
		if Validate(a, s.Rules) != nil || (len(s.Fields) > 0 && !hasAny(a, s.Fields)) {
			return path, false
		}
		if s.Next == nil {
			return path, true
		}
		name = s.Next(a)
	}
	return path, name == ""
}

// Reachable reports whether step can be shown given the stored answers.
// When it cannot, redirect names the step the user must complete first.
func (j *Journey) Reachable(step string, st Values) (redirect string, ok bool) {
	path, _ := j.Path(st)
	for _, name := range path {
		if name == step {
			return "", true
		}
	}
	return path[len(path)-1], false
}

// Reset removes every stored answer of this journey.
func (j *Journey) Reset(st interface{ Clear(prefix string) }) {
	st.Clear(j.Name + ".")
}

func hasAny(v Values, fields []string) bool {
	for _, f := range fields {
		if v.Get(f) != "" {
			return true
		}
	}
	return false
}

// Check journey step and field names.
const (
	StepDataset      = "dataset"
	StepGeometryType = "geometry-type"
	StepUploadMethod = "upload-method"
	StepURL          = "url"
	StepUpload       = "upload"

	FieldDataset      = "dataset"
	FieldGeomType     = "geomType"
	FieldUploadMethod = "upload-method"
	FieldURL          = "url"
	FieldFile         = "datafile"
	FieldRequestID    = "request-id"

	UploadMethodURL  = "url"
	UploadMethodFile = "file"
)

// NewCheckJourney builds the "check your data" journey.
func NewCheckJourney(reg *datasets.Registry) *Journey {
	slugs := make([]string, 0)
	for _, d := range reg.All() {
		slugs = append(slugs, d.Slug)
	}
	return newJourney("check",
		Step{
			Name:   StepDataset,
			Fields: []string{FieldDataset},
			Rules: []Rule{{Field: FieldDataset, Validators: []Validator{
				Required("Select a dataset"),
				OneOf(slugs, "Select a dataset from the list"),
			}}},
			Next: func(st Values) string {
				if reg.RequiresGeometryType(st.Get(FieldDataset)) {
					return StepGeometryType
				}
				return StepUploadMethod
			},
		},
		Step{
			Name:   StepGeometryType,
			Fields: []string{FieldGeomType},
			Rules: []Rule{{Field: FieldGeomType, Validators: []Validator{
				Required("Select if your geometry data is given as points or polygons"),
				OneOf([]string{"point", "polygon"}, "Select if your geometry data is given as points or polygons"),
			}}},
			Next: func(Values) string { return StepUploadMethod },
		},
		Step{
			Name:   StepUploadMethod,
			Fields: []string{FieldUploadMethod},
			Rules: []Rule{{Field: FieldUploadMethod, Validators: []Validator{
				Required("Select how you want to provide your data"),
				OneOf([]string{UploadMethodURL, UploadMethodFile}, "Select how you want to provide your data"),
			}}},
			Next: func(st Values) string {
				if st.Get(FieldUploadMethod) == UploadMethodFile {
					return StepUpload
				}
				return StepURL
			},
		},
		Step{
			Name:   StepURL,
			Fields: []string{FieldURL},
			Rules: []Rule{{Field: FieldURL, Validators: []Validator{
				Required("Enter a URL"),
				URL("Enter a URL in the correct format, like https://www.example.com/data.csv",
					fmt.Sprintf("The URL must be %d characters or fewer", MaxURLLength)),
			}}},
		},
		// The upload step's file is validated by ValidateUpload; the journey
		// only records the request it produced.
		Step{
			Name:   StepUpload,
			Fields: []string{FieldRequestID},
		},
	)
}

// Submit journey step and field names.
const (
	StepLPADetails      = "lpa-details"
	StepDatasetDetails  = "dataset-details"
	StepEndpointDetails = "endpoint-details"
	StepCheckAnswers    = "check-answers"
	StepConfirmation    = "confirmation"

	FieldName             = "name"
	FieldEmail            = "email"
	FieldOrganisation     = "organisation"
	FieldDocumentationURL = "documentation-url"
	FieldEndpointURL      = "endpoint-url"
	FieldReference        = "reference"
)

// NewSubmitJourney builds the "submit a dataset" journey.
func NewSubmitJourney(reg *datasets.Registry) *Journey {
	slugs := make([]string, 0)
	for _, d := range reg.All() {
		slugs = append(slugs, d.Slug)
	}
	urlMsg := "Enter a URL in the correct format, like https://www.example.com/data.csv"
	tooLong := fmt.Sprintf("The URL must be %d characters or fewer", MaxURLLength)

	return newJourney("submit",
		Step{
			Name:   StepLPADetails,
			Fields: []string{FieldName, FieldEmail, FieldOrganisation},
			Rules: []Rule{
				{Field: FieldName, Validators: []Validator{Required("Enter your full name"), MaxLength(100, "Your name must be 100 characters or fewer")}},
				{Field: FieldEmail, Validators: []Validator{Required("Enter your email address"), Email("Enter an email address in the correct format, like name@example.com")}},
				{Field: FieldOrganisation, Validators: []Validator{Required("Enter your organisation"), MaxLength(100, "Your organisation must be 100 characters or fewer")}},
			},
			Next: func(Values) string { return StepDatasetDetails },
		},
		Step{
			Name:   StepDatasetDetails,
			Fields: []string{FieldDataset, FieldDocumentationURL},
			Rules: []Rule{
				{Field: FieldDataset, Validators: []Validator{Required("Select a dataset"), OneOf(slugs, "Select a dataset from the list")}},
				{Field: FieldDocumentationURL, Validators: []Validator{Required("Enter a documentation URL"), URL(urlMsg, tooLong)}},
			},
			Next: func(Values) string { return StepEndpointDetails },
		},
		Step{
			Name:   StepEndpointDetails,
			Fields: []string{FieldEndpointURL},
			Rules: []Rule{
				{Field: FieldEndpointURL, Validators: []Validator{Required("Enter an endpoint URL"), URL(urlMsg, tooLong)}},
			},
			Next: func(Values) string { return StepCheckAnswers },
		},
		// Submitting check-answers sends the emails; confirmation is shown
		// from the stored reference rather than as a journey step.
		Step{Name: StepCheckAnswers},
	)
}
