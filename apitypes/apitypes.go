// Package apitypes holds the record shapes exchanged with the content API.
//
// The same structs are used on the wire (json) and by the reference server's
// Firestore backend (firestore), so the two never drift apart.
package apitypes

import (
	"io"
	"time"
)

// User is the identity behind a session.
type User struct {
	ID    string `json:"id" firestore:"id"`
	Email string `json:"email" firestore:"email"`
	Name  string `json:"name" firestore:"name"`
}

// Credentials are submitted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Post is a blog post.
type Post struct {
	ID      string `json:"id" firestore:"id"`
	Title   string `json:"title" firestore:"title"`
	Excerpt string `json:"excerpt" firestore:"excerpt"`

	// Content is body markup, rendered as-is by the site.
	Content string `json:"content" firestore:"content"`
	Author  string `json:"author" firestore:"author"`

	// Image is an optional URL for a header image.
	Image string `json:"image,omitempty" firestore:"image,omitempty"`

	CreatedAt time.Time `json:"date" firestore:"date"`
}

func (p Post) RecordID() string { return p.ID }

// Thought is a short free-text note.
type Thought struct {
	ID        string    `json:"id" firestore:"id"`
	Content   string    `json:"content" firestore:"content"`
	CreatedAt time.Time `json:"date" firestore:"date"`
}

func (t Thought) RecordID() string { return t.ID }

// Image is a gallery entry.  The bytes live behind URL.
type Image struct {
	ID          string    `json:"id" firestore:"id"`
	URL         string    `json:"url" firestore:"url"`
	Title       string    `json:"title,omitempty" firestore:"title,omitempty"`
	Description string    `json:"description,omitempty" firestore:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt" firestore:"uploadedAt"`

	// StoragePath locates the object in the backing bucket.  Never sent to
	// clients.
	StoragePath string `json:"-" firestore:"storagePath"`
}

func (i Image) RecordID() string { return i.ID }

// NewPost is the payload for creating a Post.  The server assigns ID and
// CreatedAt.
type NewPost struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Content string `json:"content"`
	Author  string `json:"author"`
	Image   string `json:"image,omitempty"`
}

// PostPatch carries only the fields being changed.
type PostPatch struct {
	Title   *string `json:"title,omitempty"`
	Excerpt *string `json:"excerpt,omitempty"`
	Content *string `json:"content,omitempty"`
	Author  *string `json:"author,omitempty"`
	Image   *string `json:"image,omitempty"`
}

// Apply returns a copy of p with the patched fields replaced.
func (pp PostPatch) Apply(p Post) Post {
	if pp.Title != nil {
		p.Title = *pp.Title
	}
	if pp.Excerpt != nil {
		p.Excerpt = *pp.Excerpt
	}
	if pp.Content != nil {
		p.Content = *pp.Content
	}
	if pp.Author != nil {
		p.Author = *pp.Author
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	return p
}

// NewThought is the payload for creating a Thought.
type NewThought struct {
	Content string `json:"content"`
}

// ThoughtPatch carries only the fields being changed.
type ThoughtPatch struct {
	Content *string `json:"content,omitempty"`
}

// Apply returns a copy of t with the patched fields replaced.
func (tp ThoughtPatch) Apply(t Thought) Thought {
	if tp.Content != nil {
		t.Content = *tp.Content
	}
	return t
}

// ImageUpload is a gallery upload.  Body is streamed as the multipart "file"
// part.
type ImageUpload struct {
	Filename    string
	Body        io.Reader
	Title       string
	Description string
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}
