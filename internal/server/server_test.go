package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/schemagraph/internal/queue"
	mid "github.com/OFFIS-RIT/schemagraph/internal/server/middleware"
	"github.com/OFFIS-RIT/schemagraph/internal/storage/storagetest"
	"github.com/OFFIS-RIT/schemagraph/pkg/common"
	"github.com/OFFIS-RIT/schemagraph/pkg/graph"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata"
	"github.com/OFFIS-RIT/schemagraph/pkg/metadata/metadatatest"
	"github.com/OFFIS-RIT/schemagraph/pkg/render"
	"github.com/OFFIS-RIT/schemagraph/pkg/schema"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"
)

type fakeRenderer struct {
	format string
}

func (r fakeRenderer) Render(ctx context.Context, model common.GraphModel) ([]byte, error) {
	return []byte("diagram:" + r.format), nil
}

func (r fakeRenderer) ContentType() string {
	if r.format == "svg" {
		return "image/svg+xml"
	}
	return "image/png"
}

func (r fakeRenderer) Extension() string { return r.format }

func newFakeRenderer(format string) (render.GraphRenderer, error) {
	switch format {
	case "", "png":
		return fakeRenderer{format: "png"}, nil
	case "svg":
		return fakeRenderer{format: "svg"}, nil
	}
	return nil, errors.New("unsupported render format")
}

type publishedMsg struct {
	queue string
	body  []byte
}

type fakePublisher struct {
	sent []publishedMsg
}

func (p *fakePublisher) Publish(queueName string, data []byte, headers amqp091.Table) error {
	p.sent = append(p.sent, publishedMsg{queue: queueName, body: data})
	return nil
}

type testServer struct {
	e     *echo.Echo
	app   *mid.App
	store *storagetest.Store
	pub   *fakePublisher
}

func siteSource() *metadatatest.Source {
	return &metadatatest.Source{
		Collections: []metadata.Descriptor{
			metadatatest.Collection("l1", "Orders"),
			metadatatest.Collection("l2", "Customers"),
		},
		Fields: map[string][]metadata.Descriptor{
			"l1": {metadatatest.LookupField("Customer", "l2")},
			"l2": {metadatatest.Field("Name", "text")},
		},
	}
}

func newTestServer(t *testing.T, src metadata.SchemaSource) *testServer {
	t.Helper()
	fetcher, err := schema.NewFetcher(schema.NewFetcherParams{})
	if err != nil {
		t.Fatalf("NewFetcher() error = %v", err)
	}
	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Fetcher: fetcher})
	if err != nil {
		t.Fatalf("NewGraphClient() error = %v", err)
	}

	store := storagetest.New()
	pub := &fakePublisher{}
	app := &mid.App{
		GraphClient: client,
		Source:      src,
		NewRenderer: newFakeRenderer,
		Store:       store,
		Queue:       pub,
		Sessions:    sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
	}
	e, err := New(app)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testServer{e: e, app: app, store: store, pub: pub}
}

func (s *testServer) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func postJSON(path string, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, siteSource())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestIndexShowsForm(t *testing.T) {
	s := newTestServer(t, siteSource())
	rec := s.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="token"`) {
		t.Error("form missing token field")
	}
}

func TestWebFlow(t *testing.T) {
	src := siteSource()
	s := newTestServer(t, src)

	rec := s.do(postForm(url.Values{"token": {"tok"}, "site_id": {"site"}}), nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/results" {
		t.Fatalf("POST / = %d -> %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
	}
	if calls := src.FieldCalls(); len(calls) != 0 {
		t.Errorf("POST / fetched fields %v, want collections only", calls)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/results", nil), cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /results = %d", rec.Code)
	}
	keys := s.store.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "images/") || !strings.HasSuffix(keys[0], ".png") {
		t.Fatalf("stored keys = %v", keys)
	}
	filename := strings.TrimPrefix(keys[0], "images/")
	body := rec.Body.String()
	if !strings.Contains(body, "/download/"+filename) {
		t.Error("results page should link the stored diagram")
	}
	if !strings.Contains(body, "2 lists, 1 relationships") {
		t.Errorf("unexpected summary in %s", body)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/download/"+filename, nil), nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "diagram:png" {
		t.Fatalf("GET /download = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("download content type = %q", ct)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/schema", nil), cookies)
	if rec.Code != http.StatusOK || rec.Body.String() != "diagram:png" {
		t.Fatalf("GET /schema = %d %q", rec.Code, rec.Body.String())
	}
}

func TestPostIndexErrorsFlash(t *testing.T) {
	tests := []struct {
		name   string
		src    *metadatatest.Source
		values url.Values
		want   string
	}{
		{
			name:   "missing fields",
			src:    siteSource(),
			values: url.Values{"token": {"tok"}},
			want:   "Token and site ID are required",
		},
		{
			name:   "no collections",
			src:    &metadatatest.Source{CollectionsErr: errors.New("401")},
			values: url.Values{"token": {"tok"}, "site_id": {"site"}},
			want:   "No SharePoint lists found or authentication failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.src)
			rec := s.do(postForm(tt.values), nil)
			if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/" {
				t.Fatalf("POST / = %d -> %q", rec.Code, rec.Header().Get(echo.HeaderLocation))
			}

			rec = s.do(httptest.NewRequest(http.MethodGet, "/", nil), rec.Result().Cookies())
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("flash %q not shown", tt.want)
			}
		})
	}
}

func TestPagesRequireSession(t *testing.T) {
	s := newTestServer(t, siteSource())
	for _, path := range []string{"/results", "/schema"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil), nil)
		if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != "/" {
			t.Errorf("GET %s = %d -> %q", path, rec.Code, rec.Header().Get(echo.HeaderLocation))
		}
	}
}

func TestDownloadMissingFile(t *testing.T) {
	s := newTestServer(t, siteSource())
	for _, name := range []string{"missing.png", ".hidden"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/download/"+name, nil), nil)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("GET /download/%s = %d, want redirect", name, rec.Code)
		}
	}
}

func TestCreateRender(t *testing.T) {
	s := newTestServer(t, siteSource())

	rec := s.do(postJSON("/api/renders", `{"token":"tok","site_id":"site","format":"svg"}`), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/renders = %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("bad response %s: %v", rec.Body.String(), err)
	}

	if len(s.pub.sent) != 1 || s.pub.sent[0].queue != queue.RenderQueue {
		t.Fatalf("published = %+v", s.pub.sent)
	}
	var job queue.RenderJobMsg
	if err := json.Unmarshal(s.pub.sent[0].body, &job); err != nil {
		t.Fatalf("job decode: %v", err)
	}
	want := queue.RenderJobMsg{ID: resp.ID, SiteID: "site", Token: "tok", Format: "svg"}
	if job != want {
		t.Errorf("job = %+v, want %+v", job, want)
	}
}

func TestCreateRenderRejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		noQueue  bool
		wantCode int
	}{
		{"missing site", `{"token":"tok"}`, false, http.StatusBadRequest},
		{"bad json", `{`, false, http.StatusBadRequest},
		{"bad format", `{"token":"tok","site_id":"s","format":"gif"}`, false, http.StatusBadRequest},
		{"no queue", `{"token":"tok","site_id":"s"}`, true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, siteSource())
			if tt.noQueue {
				s.app.Queue = nil
			}
			rec := s.do(postJSON("/api/renders", tt.body), nil)
			if rec.Code != tt.wantCode {
				t.Errorf("POST /api/renders = %d, want %d", rec.Code, tt.wantCode)
			}
			if len(s.pub.sent) != 0 {
				t.Error("nothing should be published")
			}
		})
	}
}

func TestRenderAPIKey(t *testing.T) {
	s := newTestServer(t, siteSource())
	s.app.APIKey = "secret"

	rec := s.do(postJSON("/api/renders", `{"token":"tok","site_id":"s"}`), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key = %d, want 401", rec.Code)
	}

	req := postJSON("/api/renders", `{"token":"tok","site_id":"s"}`)
	req.Header.Set(echo.HeaderAuthorization, "Bearer secret")
	if rec := s.do(req, nil); rec.Code != http.StatusAccepted {
		t.Fatalf("with key = %d, want 202", rec.Code)
	}
}

func TestGetRenderStatus(t *testing.T) {
	s := newTestServer(t, siteSource())

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/renders/job1", nil), nil)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"pending"`) {
		t.Fatalf("pending status = %d %s", rec.Code, rec.Body.String())
	}

	if err := s.store.PutImage(context.Background(), "renders/job1.svg", "image/svg+xml", []byte("<svg/>")); err != nil {
		t.Fatal(err)
	}
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/renders/job1", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("done status = %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "done" || resp.URL != "https://storage.test/renders/job1.svg" {
		t.Errorf("response = %+v", resp)
	}
}
