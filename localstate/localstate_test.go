package localstate

import (
	"errors"
	"testing"

	"folio/apitypes"

	"github.com/google/go-cmp/cmp"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	var user apitypes.User
	found, err := s.Get(KeyUser, &user)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found {
		t.Fatalf("Found %q in empty store", KeyUser)
	}

	want := apitypes.User{ID: "u1", Email: "me@example.com", Name: "Me"}
	if err := s.Put(KeyUser, want); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := s.Put(KeyAuthToken, "tok"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	found, err = s.Get(KeyUser, &user)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("Didn't find %q after Put", KeyUser)
	}
	if diff := cmp.Diff(user, want); diff != "" {
		t.Fatalf("Bad user; diff (-got +want)\n%s", diff)
	}

	if err := s.Delete(KeyAuthToken, KeyRefreshToken, KeyUser); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var token string
	found, err = s.Get(KeyAuthToken, &token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found {
		t.Fatalf("Found %q after Delete", KeyAuthToken)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestBadger(t *testing.T) {
	b, err := OpenBadger(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer b.Close()

	exerciseStore(t, b)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := OpenBadger(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := b.Put(KeyAuthToken, "persisted"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	b, err = OpenBadger(dir)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer b.Close()

	var token string
	found, err := b.Get(KeyAuthToken, &token)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !found || token != "persisted" {
		t.Fatalf("Get(%q) = %q, %v; want %q, true", KeyAuthToken, token, found, "persisted")
	}
}

func TestTokenSource(t *testing.T) {
	s := NewMemory()
	ts := TokenSource(s)

	if _, err := ts.Token(); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Token() with no stored token = %v, want ErrAuth", err)
	}

	if err := s.Put(KeyAuthToken, "first"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tok.AccessToken != "first" {
		t.Fatalf("Bad access token; got %q, want %q", tok.AccessToken, "first")
	}

	// The token is read at call time, never cached.
	if err := s.Put(KeyAuthToken, "second"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	tok, err = ts.Token()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tok.AccessToken != "second" {
		t.Fatalf("Bad access token; got %q, want %q", tok.AccessToken, "second")
	}
}
