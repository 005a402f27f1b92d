package apiserver

import (
	"context"
	"io"

	"folio/apitypes"
)

// Records is CRUD over one collection: records T, created from C, patched
// with P.  Unknown ids fail with apitypes.ErrNotFound.
type Records[T, C, P any] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, in C) (T, error)
	Update(ctx context.Context, id string, patch P) (T, error)
	Delete(ctx context.Context, id string) error
}

// Images stores gallery images.  URL on the returned records is left for the
// server to fill in.
type Images interface {
	List(ctx context.Context) ([]apitypes.Image, error)
	Create(ctx context.Context, up apitypes.ImageUpload, contentType string) (apitypes.Image, error)
	Delete(ctx context.Context, id string) error

	// Open returns the stored bytes.  The caller closes the reader.
	Open(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// Sessions checks credentials and tracks issued tokens.  Every failure to
// establish identity is apitypes.ErrAuth.
type Sessions interface {
	LogIn(ctx context.Context, creds apitypes.Credentials) (apitypes.AuthResponse, error)
	LogOut(ctx context.Context, token string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	UserForToken(ctx context.Context, token string) (apitypes.User, error)
}

// Backend is everything the server stores.
type Backend interface {
	Posts() Records[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]
	Thoughts() Records[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]
	Images() Images
	Sessions() Sessions
}
