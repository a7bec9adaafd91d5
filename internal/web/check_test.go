package web

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/results"
)

func TestCheckRedirectsToFirstStep(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.get("/check")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/check/dataset", resp.Header.Get("Location"))
}

func TestCheckStepNeedsEarlierAnswers(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get("/check/url")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/check/dataset", resp.Header.Get("Location"))

	resp, _ = h.post("/check/url", url.Values{"url": {"https://example.com/data.csv"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/check/dataset", resp.Header.Get("Location"))
	assert.Empty(t, h.requests.urlReqs)
}

func TestCheckDatasetPageListsDatasets(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/check/dataset")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<option value="conservation-area">Conservation area</option>`)
	assert.Contains(t, body, `<option value="tree">Tree</option>`)
	assert.Less(t, strings.Index(body, "Conservation area"), strings.Index(body, ">Tree<"))
}

func TestCheckDatasetValidation(t *testing.T) {
	h := newHarness(t)
	resp, body := h.post("/check/dataset", url.Values{"dataset": {""}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "There is a problem")
	assert.Contains(t, body, `<a href="#dataset">Select a dataset</a>`)
	assert.Contains(t, body, "<title>Error: ")

	resp, body = h.post("/check/dataset", url.Values{"dataset": {"hedgerow"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Select a dataset from the list")
}

func TestCheckURLJourney(t *testing.T) {
	h := newHarness(t)
	h.requests.nextID = []string{"req-1"}

	h.postStep("/check/dataset", url.Values{"dataset": {"tree"}}, "/check/geometry-type")

	resp, body := h.get("/check/geometry-type")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "How are the Tree geometries given?")

	h.postStep("/check/geometry-type", url.Values{"geomType": {"polygon"}}, "/check/upload-method")
	h.postStep("/check/upload-method", url.Values{"upload-method": {"url"}}, "/check/url")

	resp, body = h.post("/check/url", url.Values{"url": {"not a url"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Enter a URL in the correct format")
	assert.Contains(t, body, `value="not a url"`)

	h.postStep("/check/url", url.Values{"url": {"https://example.com/trees.csv"}}, "/check/status/req-1")

	require.Len(t, h.requests.urlReqs, 1)
	assert.Equal(t, requestapi.URLRequest{
		Dataset:    "tree",
		Collection: "tree-preservation-order",
		URL:        "https://example.com/trees.csv",
		GeomType:   "polygon",
	}, h.requests.urlReqs[0])
}

func TestCheckSkipsGeometryForPlainDatasets(t *testing.T) {
	h := newHarness(t)
	h.postStep("/check/dataset", url.Values{"dataset": {"conservation-area"}}, "/check/upload-method")

	resp, _ := h.get("/check/geometry-type")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestCheckURLRequestFailure(t *testing.T) {
	h := newHarness(t)
	h.requests.postErr = errors.New("backend down")

	h.postStep("/check/dataset", url.Values{"dataset": {"conservation-area"}}, "/check/upload-method")
	h.postStep("/check/upload-method", url.Values{"upload-method": {"url"}}, "/check/url")

	resp, body := h.post("/check/url", url.Values{"url": {"https://example.com/ca.csv"}})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Sorry, there is a problem with the service")
	assert.NotContains(t, body, "backend down")
}

func multipartFile(t *testing.T, field, name, content string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if name != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func startUpload(h *harness) {
	h.postStep("/check/dataset", url.Values{"dataset": {"conservation-area"}}, "/check/upload-method")
	h.postStep("/check/upload-method", url.Values{"upload-method": {"file"}}, "/check/upload")
}

func TestCheckUpload(t *testing.T) {
	h := newHarness(t)
	h.requests.nextID = []string{"req-2"}
	startUpload(h)

	resp, body := h.get("/check/upload")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Files must be smaller than 100 MB.")

	ct, buf := multipartFile(t, "datafile", "areas.csv", "reference,name\nCA1,Old town\n")
	resp, body = h.postBody("/check/upload", ct, buf)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode, body)
	assert.Equal(t, "/check/status/req-2", resp.Header.Get("Location"))

	require.Len(t, h.uploads.files, 1)
	assert.Equal(t, "areas.csv", h.uploads.files[0].name)
	assert.Equal(t, "reference,name\nCA1,Old town\n", h.uploads.files[0].body)

	require.Len(t, h.requests.fileReqs, 1)
	assert.Equal(t, requestapi.FileRequest{
		Dataset:          "conservation-area",
		Collection:       "conservation-area",
		OriginalFilename: "areas.csv",
		UploadedFilename: "uploads/abc.csv",
	}, h.requests.fileReqs[0])
}

func TestCheckUploadValidation(t *testing.T) {
	h := newHarness(t)
	startUpload(h)

	ct, buf := multipartFile(t, "datafile", "areas.exe", "MZ")
	resp, body := h.postBody("/check/upload", ct, buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "The selected file must be a CSV")

	ct, buf = multipartFile(t, "datafile", "", "")
	resp, body = h.postBody("/check/upload", ct, buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Select a file")

	assert.Empty(t, h.uploads.files)
	assert.Empty(t, h.requests.fileReqs)
}

func TestCheckUploadTooLarge(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.MaxUploadSize = 10 })
	startUpload(h)

	ct, buf := multipartFile(t, "datafile", "areas.csv", "reference,name\nCA1,Old town\n")
	resp, body := h.postBody("/check/upload", ct, buf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "The selected file must be smaller than 10 B")
}

func TestCheckUploadDisabledWithoutStore(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Uploads = nil })
	startUpload(h)

	resp, _ := h.get("/check/upload")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := h.get("/check/upload-method")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, `value="file"`)
	assert.Contains(t, body, `value="url"`)
}

func TestStatusPending(t *testing.T) {
	h := newHarness(t)
	h.requests.data["req-1"] = &results.RequestData{ID: "req-1", Status: results.StatusPending, Params: results.RequestParams{Dataset: "tree"}}

	resp, body := h.get("/check/status/req-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<meta http-equiv="refresh" content="2">`)
	assert.Contains(t, body, "Request status: PENDING")
	assert.Contains(t, body, "checking your Tree data")
}

func TestStatusComplete(t *testing.T) {
	h := newHarness(t)
	h.requests.data["req-1"] = &results.RequestData{ID: "req-1", Status: results.StatusComplete}

	resp, body := h.get("/check/status/req-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "http-equiv")
	assert.Contains(t, body, `href="/check/results/req-1/0"`)
}

func TestStatusUnknownRequest(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.get("/check/status/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
