package apitypes

import (
	"errors"
	"fmt"
	"strings"
)

// The error taxonomy shared by the gateway, the stores and the reference
// server.  Callers test with errors.Is.
var (
	// ErrNetwork means the request could not be completed.
	ErrNetwork = errors.New("network failure")

	// ErrAuth means the credential was missing, invalid or expired.
	ErrAuth = errors.New("authentication failure")

	// ErrNotFound means the identifier does not exist server-side.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the caller supplied an invalid payload.  It is
	// detected before any network call.
	ErrValidation = errors.New("validation failure")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Validate checks the fields the login form requires.
func (c Credentials) Validate() error {
	if blank(c.Email) {
		return invalid("email must not be empty")
	}
	if c.Password == "" {
		return invalid("password must not be empty")
	}
	return nil
}

func (n NewPost) Validate() error {
	if blank(n.Title) {
		return invalid("post title must not be empty")
	}
	if blank(n.Content) {
		return invalid("post content must not be empty")
	}
	return nil
}

func (pp PostPatch) Validate() error {
	if pp.Title == nil && pp.Excerpt == nil && pp.Content == nil && pp.Author == nil && pp.Image == nil {
		return invalid("post patch changes nothing")
	}
	if pp.Title != nil && blank(*pp.Title) {
		return invalid("post title must not be empty")
	}
	if pp.Content != nil && blank(*pp.Content) {
		return invalid("post content must not be empty")
	}
	return nil
}

func (n NewThought) Validate() error {
	if blank(n.Content) {
		return invalid("thought must not be empty")
	}
	return nil
}

func (tp ThoughtPatch) Validate() error {
	if tp.Content == nil {
		return invalid("thought patch changes nothing")
	}
	if blank(*tp.Content) {
		return invalid("thought must not be empty")
	}
	return nil
}

func (u ImageUpload) Validate() error {
	if u.Body == nil {
		return invalid("image upload has no file")
	}
	if blank(u.Filename) {
		return invalid("image upload has no file name")
	}
	return nil
}
