package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeSubmitAnswers(h *harness) {
	h.postStep("/submit/lpa-details", url.Values{
		"name":         {"Ada Lovelace"},
		"email":        {"ada@example.gov.uk"},
		"organisation": {"Example Borough Council"},
	}, "/submit/dataset-details")
	h.postStep("/submit/dataset-details", url.Values{
		"dataset":           {"tree"},
		"documentation-url": {"https://example.gov.uk/trees"},
	}, "/submit/endpoint-details")
	h.postStep("/submit/endpoint-details", url.Values{
		"endpoint-url": {"https://example.gov.uk/trees.csv"},
	}, "/submit/check-answers")
}

func TestSubmitRedirectsToFirstStep(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.get("/submit")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit/lpa-details", resp.Header.Get("Location"))

	resp, _ = h.get("/submit/check-answers")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit/lpa-details", resp.Header.Get("Location"))
}

func TestSubmitLPADetailsValidation(t *testing.T) {
	h := newHarness(t)
	resp, body := h.post("/submit/lpa-details", url.Values{
		"name":         {"Ada Lovelace"},
		"email":        {"not-an-email"},
		"organisation": {""},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, `<p id="email-error" class="govuk-error-message">Enter an email address in the correct format, like name@example.com</p>`)
	assert.Contains(t, body, `<a href="#organisation">Enter your organisation</a>`)
	assert.Contains(t, body, `value="Ada Lovelace"`)
	assert.NotContains(t, body, "name-error")
}

func TestSubmitJourney(t *testing.T) {
	h := newHarness(t)
	completeSubmitAnswers(h)

	resp, body := h.get("/submit/check-answers")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<dd class="govuk-summary-list__value">Tree</dd>`)
	assert.Contains(t, body, `<dd class="govuk-summary-list__value">https://example.gov.uk/trees.csv</dd>`)
	assert.Contains(t, body, `href="/submit/endpoint-details">Change</a>`)

	before := time.Now()
	h.postStep("/submit/check-answers", url.Values{}, "/submit/confirmation")

	require.Len(t, h.notifier.sent, 1)
	sub := h.notifier.sent[0]
	assert.True(t, strings.HasPrefix(sub.Reference, "SUB-"))
	assert.Len(t, sub.Reference, 14)
	assert.Equal(t, "Ada Lovelace", sub.Name)
	assert.Equal(t, "ada@example.gov.uk", sub.Email)
	assert.Equal(t, "Example Borough Council", sub.Organisation)
	assert.Equal(t, "tree", sub.Dataset)
	assert.Equal(t, "Tree", sub.DatasetName)
	assert.Equal(t, "https://example.gov.uk/trees", sub.DocumentationURL)
	assert.Equal(t, "https://example.gov.uk/trees.csv", sub.EndpointURL)
	assert.False(t, sub.SubmittedAt.Before(before))

	resp, body = h.get("/submit/confirmation")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<strong>"+sub.Reference+"</strong>")
	assert.Contains(t, body, "We have sent a confirmation email to ada@example.gov.uk.")

	// answers are cleared once sent
	resp, _ = h.get("/submit/check-answers")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit/lpa-details", resp.Header.Get("Location"))
}

func TestSubmitNotificationFailureKeepsAnswers(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("ses throttled")
	completeSubmitAnswers(h)

	resp, body := h.post("/submit/check-answers", url.Values{})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body, "ses throttled")

	resp, _ = h.get("/submit/check-answers")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitSendWithIncompleteAnswers(t *testing.T) {
	h := newHarness(t)
	h.postStep("/submit/lpa-details", url.Values{
		"name":         {"Ada Lovelace"},
		"email":        {"ada@example.gov.uk"},
		"organisation": {"Example Borough Council"},
	}, "/submit/dataset-details")

	resp, _ := h.post("/submit/check-answers", url.Values{})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/submit/dataset-details", resp.Header.Get("Location"))
	assert.Empty(t, h.notifier.sent)
}

func TestConfirmationWithoutSubmission(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.get("/submit/confirmation")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/submit/lpa-details", resp.Header.Get("Location"))
}

func TestNewReference(t *testing.T) {
	a, b := newReference(), newReference()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^SUB-[0-9A-F]{10}$`, a)
}
