package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-land/submit/internal/datasets"
	"github.com/digital-land/submit/internal/issuemsg"
	"github.com/digital-land/submit/internal/notify"
	"github.com/digital-land/submit/internal/pkg/render"
	"github.com/digital-land/submit/internal/requestapi"
	"github.com/digital-land/submit/internal/results"
	"github.com/digital-land/submit/internal/session"
)

type fakeRequests struct {
	mu       sync.Mutex
	nextID   []string
	urlReqs  []requestapi.URLRequest
	fileReqs []requestapi.FileRequest
	queries  []requestapi.DetailsQuery
	data     map[string]*results.RequestData
	details  map[string]*results.ResponseDetails
	postErr  error
}

func (f *fakeRequests) id() string {
	if len(f.nextID) == 0 {
		return "req-x"
	}
	id := f.nextID[0]
	f.nextID = f.nextID[1:]
	return id
}

func (f *fakeRequests) PostURLRequest(_ context.Context, r requestapi.URLRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.urlReqs = append(f.urlReqs, r)
	return f.id(), nil
}

func (f *fakeRequests) PostFileRequest(_ context.Context, r requestapi.FileRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.fileReqs = append(f.fileReqs, r)
	return f.id(), nil
}

func (f *fakeRequests) GetRequestData(_ context.Context, id string) (*results.RequestData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[id]
	if !ok {
		return nil, requestapi.ErrNotFound
	}
	return d, nil
}

func (f *fakeRequests) GetResponseDetails(_ context.Context, id string, q requestapi.DetailsQuery, log results.ColumnFieldLog) (*results.ResponseDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[id]; !ok {
		return nil, requestapi.ErrNotFound
	}
	f.queries = append(f.queries, q)
	if d, ok := f.details[id]; ok {
		return results.NewResponseDetails(id, d.Rows(), log, d.Window()), nil
	}
	return results.NewResponseDetails(id, []results.Row{}, log, results.PageWindow{}), nil
}

type stagedFile struct {
	name string
	body string
}

type fakeUploads struct {
	mu       sync.Mutex
	files    []stagedFile
	readyErr error
}

func (f *fakeUploads) Put(_ context.Context, name string, body io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, stagedFile{name: name, body: string(b)})
	return "uploads/abc.csv", nil
}

func (f *fakeUploads) Ready(context.Context) error { return f.readyErr }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Submission
	err  error
}

func (f *fakeNotifier) NotifySubmission(_ context.Context, s notify.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s)
	return nil
}

type harness struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	redis    *miniredis.Miniredis
	requests *fakeRequests
	uploads  *fakeUploads
	notifier *fakeNotifier
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg, err := datasets.NewRegistry([]datasets.Dataset{
		{Slug: "tree", Name: "Tree", Collection: "tree-preservation-order", RequiresGeometryType: true},
		{Slug: "conservation-area", Name: "Conservation area"},
	})
	require.NoError(t, err)

	engine := render.New()
	catalog, err := issuemsg.Default(engine)
	require.NoError(t, err)

	h := &harness{
		t:        t,
		redis:    mr,
		requests: &fakeRequests{data: map[string]*results.RequestData{}, details: map[string]*results.ResponseDetails{}},
		uploads:  &fakeUploads{},
		notifier: &fakeNotifier{},
	}
	deps := Deps{
		Requests: h.requests,
		Uploads:  h.uploads,
		Sessions: session.NewStore(rdb, session.Config{}),
		Notifier: h.notifier,
		Datasets: reg,
		Messages: catalog,
		Engine:   engine,
		PageSize: 50,
	}
	for _, o := range opts {
		o(&deps)
	}
	s, err := NewServer(deps)
	require.NoError(t, err)

	h.srv = httptest.NewServer(s.Routes())
	t.Cleanup(h.srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) do(req *http.Request) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, string(body)
}

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(h.t, err)
	return h.do(req)
}

func (h *harness) post(path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) postBody(path, contentType string, body *bytes.Buffer) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, body)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", contentType)
	return h.do(req)
}

// postStep submits a form and expects a redirect to next.
func (h *harness) postStep(path string, form url.Values, next string) {
	h.t.Helper()
	resp, body := h.post(path, form)
	require.Equal(h.t, http.StatusSeeOther, resp.StatusCode, body)
	require.Equal(h.t, next, resp.Header.Get("Location"))
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestStartPage(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "Check your data")
	assert.Contains(t, body, "<title>Submit and update your planning data - Submit and update your planning data</title>")
}

func TestUnknownPageIsNotFound(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/no-such-page")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
}

func TestSessionStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.postStep("/check/dataset", url.Values{"dataset": {"conservation-area"}}, "/check/upload-method")
	h.redis.Close()

	resp, _ := h.get("/check/upload-method")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthReady(t *testing.T) {
	h := newHarness(t)
	resp, body := h.get("/health/ready")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Ready  bool                      `json:"ready"`
		Status string                    `json:"status"`
		Checks map[string]ComponentCheck `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.Ready)
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "up", out.Checks["redis"].Status)
	assert.Equal(t, "up", out.Checks["uploads"].Status)
}

func TestHealthDegradedWhenBucketUnreachable(t *testing.T) {
	h := newHarness(t)
	h.uploads.readyErr = errors.New("forbidden")

	resp, body := h.get("/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out HealthStatus
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "degraded", out.Status)
	assert.Equal(t, "down", out.Checks["uploads"].Status)
	assert.Contains(t, out.Checks["uploads"].Message, "forbidden")
}

func TestHealthUnhealthyWithoutRedis(t *testing.T) {
	h := newHarness(t)
	h.redis.Close()

	resp, body := h.get("/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, `"ready":false`)

	resp, _ = h.get("/health/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthWithoutUploads(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Uploads = nil })

	_, body := h.get("/health")
	var out HealthStatus
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, notConfigured, out.Checks["uploads"].Message)
}

func TestDetermineOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ComponentCheck
		want   string
	}{
		{"all up", map[string]ComponentCheck{"redis": {Status: "up"}, "uploads": {Status: "up"}}, "healthy"},
		{"redis down", map[string]ComponentCheck{"redis": {Status: "down"}, "uploads": {Status: "up"}}, "unhealthy"},
		{"redis slow", map[string]ComponentCheck{"redis": {Status: "degraded"}}, "degraded"},
		{"uploads unconfigured", map[string]ComponentCheck{"redis": {Status: "up"}, "uploads": {Status: "down", Message: notConfigured}}, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOverallStatus(tt.checks))
		})
	}
}
