package apiserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"folio/apitypes"
	"folio/gateway"
	"folio/localstate"

	"github.com/google/go-cmp/cmp"
)

const pngHeader = "\x89PNG\r\n\x1a\n"

type recordingNotifier struct {
	lock  sync.Mutex
	posts []string
}

func (n *recordingNotifier) PostPublished(ctx context.Context, post apitypes.Post) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.posts = append(n.posts, post.Title)
	return nil
}

// fakeClock ticks a minute on every read.
type fakeClock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	srv      *httptest.Server
	client   *gateway.Client
	state    *localstate.Memory
	notifier *recordingNotifier
	clock    *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		state:    localstate.NewMemory(),
		notifier: &recordingNotifier{},
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	backend := NewMemoryBackend(f.clock.Now)
	if err := backend.AddUser(apitypes.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}, "hunter2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	m := http.NewServeMux()
	New(backend, f.notifier).Register(m)
	f.srv = httptest.NewServer(m)
	t.Cleanup(f.srv.Close)

	c, err := gateway.New(f.srv.Client(), f.srv.URL, localstate.TokenSource(f.state))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	f.client = c
	return f
}

func (f *fixture) logIn(t *testing.T) apitypes.AuthResponse {
	t.Helper()
	resp, err := f.client.Auth().Login(context.Background(), apitypes.Credentials{Email: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := f.state.Put(localstate.KeyAuthToken, resp.Token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return resp
}

func TestLogIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.client.Auth().Login(ctx, apitypes.Credentials{Email: "ada@example.com", Password: "wrong"})
	if !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Login() with wrong password = %v, want ErrAuth", err)
	}
	_, err = f.client.Auth().Login(ctx, apitypes.Credentials{Email: "bob@example.com", Password: "hunter2"})
	if !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Login() with unknown user = %v, want ErrAuth", err)
	}

	resp := f.logIn(t)
	if diff := cmp.Diff(resp.User, apitypes.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}); diff != "" {
		t.Fatalf("Bad user; diff (-got +want)\n%s", diff)
	}

	me, err := f.client.Auth().CurrentUser(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if me.Email != "ada@example.com" {
		t.Fatalf("Bad current user %+v", me)
	}
}

func TestPostLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posts := f.client.Posts()

	_, err := posts.Create(ctx, apitypes.NewPost{Title: "Anon", Content: "c"})
	if !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Create() without login = %v, want ErrAuth", err)
	}

	f.logIn(t)

	first, err := posts.Create(ctx, apitypes.NewPost{Title: "First", Excerpt: "e", Content: "<p>1</p>", Author: "Ada"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := posts.Create(ctx, apitypes.NewPost{Title: "Second", Content: "<p>2</p>", Author: "Ada"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("Server did not assign id and date: %+v", first)
	}

	list, err := posts.List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(list, []apitypes.Post{second, first}); diff != "" {
		t.Fatalf("Bad list; diff (-got +want)\n%s", diff)
	}

	updated, err := posts.Update(ctx, first.ID, apitypes.PostPatch{Title: apitypes.String("First!")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := first
	want.Title = "First!"
	if diff := cmp.Diff(updated, want); diff != "" {
		t.Fatalf("Bad update; diff (-got +want)\n%s", diff)
	}

	if err := posts.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := posts.Get(ctx, first.ID); !errors.Is(err, apitypes.ErrNotFound) {
		t.Fatalf("Get() after delete = %v, want ErrNotFound", err)
	}
	if err := posts.Delete(ctx, first.ID); !errors.Is(err, apitypes.ErrNotFound) {
		t.Fatalf("Second Delete() = %v, want ErrNotFound", err)
	}

	if diff := cmp.Diff(f.notifier.posts, []string{"First", "Second"}); diff != "" {
		t.Fatalf("Bad notices; diff (-got +want)\n%s", diff)
	}
}

func TestThoughtUpdateUnknownID(t *testing.T) {
	f := newFixture(t)
	f.logIn(t)

	_, err := f.client.Thoughts().Update(context.Background(), "404", apitypes.ThoughtPatch{Content: apitypes.String("x")})
	if !errors.Is(err, apitypes.ErrNotFound) {
		t.Fatalf("Update() = %v, want ErrNotFound", err)
	}
}

func TestServerRejectsInvalidPayloads(t *testing.T) {
	f := newFixture(t)
	resp := f.logIn(t)

	testCases := []struct {
		desc        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{desc: "empty title", method: http.MethodPost, path: "/api/blog", contentType: "application/json", body: `{"title":"","content":"c"}`, want: http.StatusBadRequest},
		{desc: "bad json", method: http.MethodPost, path: "/api/thoughts", contentType: "application/json", body: `{`, want: http.StatusBadRequest},
		{desc: "wrong content type", method: http.MethodPost, path: "/api/thoughts", contentType: "text/plain", body: `{"content":"x"}`, want: http.StatusBadRequest},
		{desc: "empty patch", method: http.MethodPut, path: "/api/thoughts/1", contentType: "application/json", body: `{}`, want: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, f.srv.URL+tc.path, strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			req.Header.Set("Content-Type", tc.contentType)
			req.Header.Set("Authorization", "Bearer "+resp.Token)

			got, err := f.srv.Client().Do(req)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			got.Body.Close()
			if got.StatusCode != tc.want {
				t.Fatalf("Bad status %d, want %d", got.StatusCode, tc.want)
			}
		})
	}
}

func TestLogOutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.logIn(t)

	if err := f.client.Auth().Logout(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The token is still in local state, but the server no longer honors it.
	_, err := f.client.Thoughts().Create(ctx, apitypes.NewThought{Content: "after logout"})
	if !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Create() after logout = %v, want ErrAuth", err)
	}
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	resp := f.logIn(t)

	token, err := f.client.Auth().RefreshToken(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if token == "" || token == resp.Token {
		t.Fatalf("Bad refreshed token %q", token)
	}
	if err := f.state.Put(localstate.KeyAuthToken, token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := f.client.Thoughts().Create(ctx, apitypes.NewThought{Content: "with new token"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := f.client.Auth().RefreshToken(ctx, "bogus"); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("RefreshToken(bogus) = %v, want ErrAuth", err)
	}
}

func TestLogOutRacingRefreshLeavesNoLiveToken(t *testing.T) {
	backend := NewMemoryBackend(nil)
	if err := backend.AddUser(apitypes.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}, "hunter2"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sessions := backend.Sessions()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		auth, err := sessions.LogIn(ctx, apitypes.Credentials{Email: "ada@example.com", Password: "hunter2"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		var refreshed string
		var refreshErr error
		wg := sync.WaitGroup{}
		wg.Add(2)
		go func() {
			defer wg.Done()
			refreshed, refreshErr = sessions.Refresh(ctx, auth.RefreshToken)
		}()
		go func() {
			defer wg.Done()
			if err := sessions.LogOut(ctx, auth.Token); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
		wg.Wait()

		if refreshErr != nil {
			if !errors.Is(refreshErr, apitypes.ErrAuth) {
				t.Fatalf("Refresh() = %v, want nil or ErrAuth", refreshErr)
			}
			continue
		}
		if _, err := sessions.UserForToken(ctx, refreshed); !errors.Is(err, apitypes.ErrAuth) {
			t.Fatalf("Token minted by Refresh is still live after LogOut: %v", err)
		}
	}
}

func TestGalleryUploadAndServe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.logIn(t)

	data := pngHeader + "rest of the image"
	img, err := f.client.Gallery().Upload(ctx, apitypes.ImageUpload{
		Filename:    "cat.png",
		Body:        strings.NewReader(data),
		Title:       "Cat",
		Description: "A cat",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if want := f.srv.URL + "/api/gallery/" + img.ID + "/file"; img.URL != want {
		t.Fatalf("Bad image URL %q, want %q", img.URL, want)
	}

	list, err := f.client.Gallery().List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(list, []apitypes.Image{img}); diff != "" {
		t.Fatalf("Bad list; diff (-got +want)\n%s", diff)
	}

	resp, err := f.srv.Client().Get(img.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(body) != data || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("Bad image response %q with type %q", body, resp.Header.Get("Content-Type"))
	}

	if err := f.client.Gallery().Delete(ctx, img.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	list, err = f.client.Gallery().List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("Gallery not empty after delete: %+v", list)
	}
}

func TestGalleryRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	f.logIn(t)

	_, err := f.client.Gallery().Upload(context.Background(), apitypes.ImageUpload{
		Filename: "notes.txt",
		Body:     strings.NewReader("just some text"),
	})
	if !errors.Is(err, apitypes.ErrValidation) {
		t.Fatalf("Upload() = %v, want ErrValidation", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.logIn(t)

	f.clock.Advance(SessionLifetime + time.Hour)

	if _, err := f.client.Auth().CurrentUser(ctx); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("CurrentUser() after expiry = %v, want ErrAuth", err)
	}
}
