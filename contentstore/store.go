package contentstore

import (
	"context"

	"folio/apitypes"
)

// Gateway is the remote side of a Store: records T, created from C, patched
// with P.
type Gateway[T, C, P any] interface {
	Lister[T]
	Create(ctx context.Context, in C) (T, error)
	Update(ctx context.Context, id string, patch P) (T, error)
	Delete(ctx context.Context, id string) error
}

// Store is a collection with create, update and delete.
type Store[T Record, C, P any] struct {
	*Collection[T]
	gw Gateway[T, C, P]
}

type (
	PostStore    = Store[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]
	ThoughtStore = Store[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]
)

func NewPostStore(gw Gateway[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]) *PostStore {
	return &PostStore{Collection: newCollection[apitypes.Post]("posts", gw), gw: gw}
}

func NewThoughtStore(gw Gateway[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]) *ThoughtStore {
	return &ThoughtStore{Collection: newCollection[apitypes.Thought]("thoughts", gw), gw: gw}
}

// Add creates a record and puts the server's copy at the front of the items.
func (s *Store[T, C, P]) Add(ctx context.Context, in C) (T, error) {
	rec, err := s.gw.Create(ctx, in)
	if err != nil {
		var zero T
		return zero, err
	}
	s.prepend(rec)
	return rec, nil
}

// Update patches a record and replaces it in the items with the server's copy.
func (s *Store[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	rec, err := s.gw.Update(ctx, id, patch)
	if err != nil {
		var zero T
		return zero, err
	}
	s.replace(rec)
	return rec, nil
}

// Remove deletes a record.  It stays in the items until the server confirms.
func (s *Store[T, C, P]) Remove(ctx context.Context, id string) error {
	if err := s.gw.Delete(ctx, id); err != nil {
		return err
	}
	s.remove(id)
	return nil
}

// GalleryGateway is the remote side of a GalleryStore.
type GalleryGateway interface {
	Lister[apitypes.Image]
	Upload(ctx context.Context, up apitypes.ImageUpload) (apitypes.Image, error)
	Delete(ctx context.Context, id string) error
}

// GalleryStore holds gallery images.  Images are uploaded, never edited.
type GalleryStore struct {
	*Collection[apitypes.Image]
	gw GalleryGateway
}

func NewGalleryStore(gw GalleryGateway) *GalleryStore {
	return &GalleryStore{Collection: newCollection[apitypes.Image]("gallery", gw), gw: gw}
}

// Upload stores a new image and puts it at the front of the items.
func (s *GalleryStore) Upload(ctx context.Context, up apitypes.ImageUpload) (apitypes.Image, error) {
	img, err := s.gw.Upload(ctx, up)
	if err != nil {
		return apitypes.Image{}, err
	}
	s.prepend(img)
	return img, nil
}

func (s *GalleryStore) Remove(ctx context.Context, id string) error {
	if err := s.gw.Delete(ctx, id); err != nil {
		return err
	}
	s.remove(id)
	return nil
}
