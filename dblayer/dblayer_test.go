package dblayer

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"folio/apitypes"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/option"
)

func TestObjectName(t *testing.T) {
	testCases := []struct {
		id, filename string
		want         string
	}{
		{id: "abc", filename: "cat.png", want: "gallery/abc/cat.png"},
		{id: "abc", filename: "../../etc/passwd", want: "gallery/abc/passwd"},
		{id: "abc", filename: "dir/cat.png", want: "gallery/abc/cat.png"},
	}
	for _, tc := range testCases {
		if got := objectName(tc.id, tc.filename); got != tc.want {
			t.Fatalf("objectName(%q, %q) = %q, want %q", tc.id, tc.filename, got, tc.want)
		}
	}
}

func TestCreateImageErrorKeepsCause(t *testing.T) {
	img := apitypes.Image{ID: "abc", StoragePath: "gallery/abc/cat.png"}
	createErr := errors.New("firestore unavailable")

	testCases := []struct {
		desc       string
		cleanupErr error
		wantMsg    string
	}{
		{
			desc:    "cleanup succeeded",
			wantMsg: "while creating image abc: firestore unavailable",
		},
		{
			desc:       "cleanup failed",
			cleanupErr: errors.New("bucket unavailable"),
			wantMsg:    "while creating image abc: firestore unavailable (cleanup of object gallery/abc/cat.png: bucket unavailable)",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := createImageError(img, createErr, tc.cleanupErr)
			if !errors.Is(err, createErr) {
				t.Fatalf("createImageError() = %v, does not wrap the create error", err)
			}
			if diff := cmp.Diff(err.Error(), tc.wantMsg); diff != "" {
				t.Fatalf("Bad message; diff (-got +want)\n%s", diff)
			}
		})
	}
}

// newEmulatorDB connects to the Firestore emulator named by
// FIRESTORE_EMULATOR_HOST, skipping the test when there is none.
func newEmulatorDB(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	fs, err := firestore.NewClient(ctx, "folio-test-"+time.Now().Format("150405.000000"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	gcs, err := storage.NewClient(ctx, option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	t.Cleanup(func() { gcs.Close() })

	return New(fs, gcs, "unused")
}

func TestPostsOnEmulator(t *testing.T) {
	db := newEmulatorDB(t)
	ctx := context.Background()

	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	first, err := db.Posts().Create(ctx, apitypes.NewPost{Title: "First"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := db.Posts().Create(ctx, apitypes.NewPost{Title: "Second"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	updated, err := db.Posts().Update(ctx, first.ID, apitypes.PostPatch{Excerpt: apitypes.String("short")})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if updated.Title != "First" || updated.Excerpt != "short" {
		t.Fatalf("Bad update result %+v", updated)
	}

	got, err := db.Posts().List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	titles := []string{}
	for _, p := range got {
		titles = append(titles, p.Title)
	}
	if diff := cmp.Diff(titles, []string{second.Title, first.Title}); diff != "" {
		t.Fatalf("Bad listing; diff (-got +want)\n%s", diff)
	}

	if err := db.Posts().Delete(ctx, second.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := db.Posts().Delete(ctx, second.ID); !errors.Is(err, apitypes.ErrNotFound) {
		t.Fatalf("Second delete: got %v, want ErrNotFound", err)
	}
	if _, err := db.Posts().Update(ctx, second.ID, apitypes.PostPatch{}); !errors.Is(err, apitypes.ErrNotFound) {
		t.Fatalf("Update of deleted post: got %v, want ErrNotFound", err)
	}
}

func TestSessionsOnEmulator(t *testing.T) {
	db := newEmulatorDB(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	user, err := db.CreateUser(ctx, apitypes.User{Email: "ada@example.com", Name: "Ada"}, string(hash))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := db.CreateUser(ctx, apitypes.User{Email: "ada@example.com"}, string(hash)); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("Duplicate user: got %v, want ErrUserAlreadyExists", err)
	}

	if _, err := db.Sessions().LogIn(ctx, apitypes.Credentials{Email: "ada@example.com", Password: "nope"}); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Bad password: got %v, want ErrAuth", err)
	}

	auth, err := db.Sessions().LogIn(ctx, apitypes.Credentials{Email: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(auth.User, user); diff != "" {
		t.Fatalf("Bad login user; diff (-got +want)\n%s", diff)
	}

	token, err := db.Sessions().Refresh(ctx, auth.RefreshToken)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := db.Sessions().UserForToken(ctx, auth.Token); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Rotated-out token still valid: %v", err)
	}
	if _, err := db.Sessions().UserForToken(ctx, token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := db.Sessions().LogOut(ctx, token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := db.Sessions().Refresh(ctx, auth.RefreshToken); !errors.Is(err, apitypes.ErrAuth) {
		t.Fatalf("Refresh after logout: got %v, want ErrAuth", err)
	}
}
