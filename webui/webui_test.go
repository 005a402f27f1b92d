package webui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"folio/apiserver"
	"folio/apitypes"
	"folio/contentstore"
	"folio/gateway"
	"folio/localstate"
	"folio/session"
)

type site struct {
	backend  *apiserver.MemoryBackend
	mux      *http.ServeMux
	session  *session.Store
	thoughts *contentstore.ThoughtStore
}

// postsGateway is the posts side of the content API, as the store sees it.
type postsGateway = contentstore.Gateway[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]

// flakyPosts fails the first failures List calls.
type flakyPosts struct {
	postsGateway

	lock      sync.Mutex
	failures  int
	listCalls int
}

func (f *flakyPosts) List(ctx context.Context) ([]apitypes.Post, error) {
	f.lock.Lock()
	f.listCalls++
	fail := f.listCalls <= f.failures
	f.lock.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: connection refused", apitypes.ErrNetwork)
	}
	return f.postsGateway.List(ctx)
}

func newSite(t *testing.T) *site {
	return newSiteWithPosts(t, nil)
}

// newSiteWithPosts builds the site; wrap, if non-nil, sits between the posts
// store and the API.
func newSiteWithPosts(t *testing.T, wrap func(postsGateway) postsGateway) *site {
	t.Helper()

	backend := apiserver.NewMemoryBackend(nil)
	if err := backend.AddUser(apitypes.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}, "hunter2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	apiMux := http.NewServeMux()
	apiserver.New(backend, nil).Register(apiMux)
	api := httptest.NewServer(apiMux)
	t.Cleanup(api.Close)

	state := localstate.NewMemory()
	client, err := gateway.New(api.Client(), api.URL, localstate.TokenSource(state))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sess, err := session.New(client.Auth(), state)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s := &site{
		backend:  backend,
		mux:      http.NewServeMux(),
		session:  sess,
		thoughts: contentstore.NewThoughtStore(client.Thoughts()),
	}
	var posts postsGateway = client.Posts()
	if wrap != nil {
		posts = wrap(posts)
	}
	New(contentstore.NewPostStore(posts), s.thoughts, contentstore.NewGalleryStore(client.Gallery()), sess).Register(s.mux)
	return s
}

func (s *site) do(t *testing.T, method, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	resp := rec.Result()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return resp, string(data)
}

func (s *site) logIn(t *testing.T) {
	t.Helper()
	if _, err := s.session.Login(context.Background(), apitypes.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestBlogRefreshesOnFirstRenderOnly(t *testing.T) {
	s := newSite(t)
	ctx := context.Background()

	if _, err := s.backend.Posts().Create(ctx, apitypes.NewPost{Title: "Getting Started", Content: "<p>hi</p>"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, body := s.do(t, http.MethodGet, "/blog", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Bad status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Getting Started") {
		t.Fatalf("Blog page is missing the post:\n%s", body)
	}

	if _, err := s.backend.Posts().Create(ctx, apitypes.NewPost{Title: "Added Behind Our Back", Content: "<p>x</p>"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, body = s.do(t, http.MethodGet, "/blog", nil)
	if strings.Contains(body, "Added Behind Our Back") {
		t.Fatalf("Second render refreshed the store again")
	}
}

func TestBlogPost(t *testing.T) {
	s := newSite(t)

	p, err := s.backend.Posts().Create(context.Background(), apitypes.NewPost{Title: "Mastering CSS", Content: "<em>grids</em>"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	resp, body := s.do(t, http.MethodGet, "/blog/"+p.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Bad status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "<em>grids</em>") {
		t.Fatalf("Post content was not rendered as markup:\n%s", body)
	}

	if resp, _ := s.do(t, http.MethodGet, "/blog/nope", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Bad status %d for unknown post", resp.StatusCode)
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	s := newSite(t)

	resp, body := s.do(t, http.MethodGet, "/no/such/page", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Bad status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "/no/such/page") {
		t.Fatalf("404 page does not name the path:\n%s", body)
	}
}

func TestDashboardRequiresSession(t *testing.T) {
	s := newSite(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{method: http.MethodGet, path: "/dashboard"},
		{method: http.MethodPost, path: "/dashboard/thoughts/create"},
	} {
		resp, _ := s.do(t, tc.method, tc.path, url.Values{"content": {"x"}})
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("%s %s: bad status %d", tc.method, tc.path, resp.StatusCode)
		}
		if got, want := resp.Header.Get("Location"), "/log-in?redirect-target=%2Fdashboard"; got != want {
			t.Fatalf("%s %s: bad redirect %q, want %q", tc.method, tc.path, got, want)
		}
	}

	thoughts, err := s.backend.Thoughts().List(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(thoughts) != 0 {
		t.Fatalf("Gated mutation went through: %+v", thoughts)
	}
}

func TestLogInForm(t *testing.T) {
	s := newSite(t)

	resp, _ := s.do(t, http.MethodPost, "/log-in", url.Values{
		"email":           {"ada@example.com"},
		"password":        {"wrong"},
		"redirect-target": {"/dashboard"},
	})
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loc.Path != "/log-in" || loc.Query().Get("user-error") != "Unknown user or wrong password" || loc.Query().Get("redirect-target") != "/dashboard" {
		t.Fatalf("Bad redirect after failed login: %q", loc)
	}

	resp, _ = s.do(t, http.MethodPost, "/log-in", url.Values{
		"email":           {"ada@example.com"},
		"password":        {"hunter2"},
		"redirect-target": {"/dashboard"},
	})
	if got := resp.Header.Get("Location"); got != "/dashboard" {
		t.Fatalf("Bad redirect after login %q", got)
	}

	resp, body := s.do(t, http.MethodGet, "/dashboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Bad dashboard status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Log Out (Ada)") {
		t.Fatalf("Dashboard does not show the active user:\n%s", body)
	}
}

func TestLogInIgnoresOffsiteTarget(t *testing.T) {
	s := newSite(t)

	resp, _ := s.do(t, http.MethodPost, "/log-in", url.Values{
		"email":           {"ada@example.com"},
		"password":        {"hunter2"},
		"redirect-target": {"//evil.example.com/"},
	})
	if got := resp.Header.Get("Location"); got != "/" {
		t.Fatalf("Bad redirect %q, want /", got)
	}
}

func TestDashboardMutations(t *testing.T) {
	s := newSite(t)
	s.logIn(t)
	ctx := context.Background()

	resp, _ := s.do(t, http.MethodPost, "/dashboard/thoughts/create", url.Values{"content": {"first thought"}})
	if got := resp.Header.Get("Location"); got != "/dashboard" {
		t.Fatalf("Bad redirect after create %q", got)
	}

	items := s.thoughts.Items()
	if len(items) != 1 || items[0].Content != "first thought" {
		t.Fatalf("Bad store items after create: %+v", items)
	}

	resp, _ = s.do(t, http.MethodPost, "/dashboard/thoughts/update", url.Values{"id": {items[0].ID}, "content": {"second draft"}})
	if got := resp.Header.Get("Location"); got != "/dashboard" {
		t.Fatalf("Bad redirect after update %q", got)
	}
	got, err := s.backend.Thoughts().Get(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Content != "second draft" {
		t.Fatalf("Bad content on server %q", got.Content)
	}

	resp, _ = s.do(t, http.MethodPost, "/dashboard/thoughts/create", url.Values{"content": {"   "}})
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if loc.Path != "/dashboard" || !strings.Contains(loc.Query().Get("user-error"), "must not be empty") {
		t.Fatalf("Bad redirect after invalid create: %q", loc)
	}
	if n := len(s.thoughts.Items()); n != 1 {
		t.Fatalf("Invalid create changed the store; %d items", n)
	}

	resp, _ = s.do(t, http.MethodPost, "/dashboard/thoughts/delete", url.Values{"id": {items[0].ID}})
	if got := resp.Header.Get("Location"); got != "/dashboard" {
		t.Fatalf("Bad redirect after delete %q", got)
	}
	if n := len(s.thoughts.Items()); n != 0 {
		t.Fatalf("Delete left %d items in the store", n)
	}
}

func TestLogOut(t *testing.T) {
	s := newSite(t)
	s.logIn(t)

	resp, _ := s.do(t, http.MethodPost, "/log-out", url.Values{})
	if got := resp.Header.Get("Location"); got != "/" {
		t.Fatalf("Bad redirect after logout %q", got)
	}
	if s.session.IsAuthenticated() {
		t.Fatalf("Still authenticated after logout")
	}
}

func TestBlogRefreshesAgainAfterFailedFirstRender(t *testing.T) {
	flaky := &flakyPosts{failures: 1}
	s := newSiteWithPosts(t, func(gw postsGateway) postsGateway {
		flaky.postsGateway = gw
		return flaky
	})

	if _, err := s.backend.Posts().Create(context.Background(), apitypes.NewPost{Title: "Getting Started", Content: "<p>hi</p>"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, body := s.do(t, http.MethodGet, "/blog", nil); strings.Contains(body, "Getting Started") {
		t.Fatalf("Post rendered although the first refresh failed")
	}

	_, body := s.do(t, http.MethodGet, "/blog", nil)
	if !strings.Contains(body, "Getting Started") {
		t.Fatalf("Second render did not retry the refresh:\n%s", body)
	}

	s.do(t, http.MethodGet, "/blog", nil)
	flaky.lock.Lock()
	defer flaky.lock.Unlock()
	if flaky.listCalls != 2 {
		t.Fatalf("Got %d list calls, want 2", flaky.listCalls)
	}
}

func TestCrossOriginMutationIsRejected(t *testing.T) {
	s := newSite(t)
	s.logIn(t)

	th, err := s.backend.Thoughts().Create(context.Background(), apitypes.NewThought{Content: "keep me"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	testCases := []struct {
		desc     string
		headers  map[string]string
		wantCode int
	}{
		{
			desc:     "cross-site fetch metadata",
			headers:  map[string]string{"Origin": "https://evil.example", "Sec-Fetch-Site": "cross-site"},
			wantCode: http.StatusForbidden,
		},
		{
			desc:     "foreign origin only",
			headers:  map[string]string{"Origin": "https://evil.example"},
			wantCode: http.StatusForbidden,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			form := url.Values{"id": {th.ID}}
			req := httptest.NewRequest(http.MethodPost, "/dashboard/thoughts/delete", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			rec := httptest.NewRecorder()
			s.mux.ServeHTTP(rec, req)
			if rec.Code != tc.wantCode {
				t.Fatalf("Bad status %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}

	if _, err := s.backend.Thoughts().Get(context.Background(), th.ID); err != nil {
		t.Fatalf("Thought was deleted by a cross-origin request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/dashboard/thoughts/delete", strings.NewReader(url.Values{"id": {th.ID}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("Location"); got != "/dashboard" {
		t.Fatalf("Same-origin delete: bad redirect %q", got)
	}
	if _, err := s.backend.Thoughts().Get(context.Background(), th.ID); err == nil {
		t.Fatalf("Same-origin delete did not go through")
	}
}
