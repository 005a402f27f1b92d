// Package dblayer packages up the content API's Firestore and GCS accesses.
package dblayer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"time"

	"folio/apiserver"
	"folio/apitypes"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	postsCollection    = "Posts"
	thoughtsCollection = "Thoughts"
	imagesCollection   = "Images"
	usersCollection    = "Users"
	sessionsCollection = "Sessions"
)

// DB implements apiserver.Backend on Firestore, with gallery bytes kept in a
// GCS bucket.
type DB struct {
	firestoreClient *firestore.Client
	bucket          *storage.BucketHandle
	now             func() time.Time

	posts    *table[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]
	thoughts *table[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]
}

func New(firestoreClient *firestore.Client, gcsClient *storage.Client, bucketName string) *DB {
	db := &DB{
		firestoreClient: firestoreClient,
		bucket:          gcsClient.Bucket(bucketName),
		now:             time.Now,
	}
	db.posts = &table[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]{
		db:         db,
		collection: postsCollection,
		build: func(n apitypes.NewPost, id string, at time.Time) apitypes.Post {
			return apitypes.Post{
				ID:        id,
				Title:     n.Title,
				Excerpt:   n.Excerpt,
				Content:   n.Content,
				Author:    n.Author,
				Image:     n.Image,
				CreatedAt: at,
			}
		},
		apply: apitypes.PostPatch.Apply,
	}
	db.thoughts = &table[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]{
		db:         db,
		collection: thoughtsCollection,
		build: func(n apitypes.NewThought, id string, at time.Time) apitypes.Thought {
			return apitypes.Thought{ID: id, Content: n.Content, CreatedAt: at}
		},
		apply: apitypes.ThoughtPatch.Apply,
	}
	return db
}

func (db *DB) Posts() apiserver.Records[apitypes.Post, apitypes.NewPost, apitypes.PostPatch] {
	return db.posts
}

func (db *DB) Thoughts() apiserver.Records[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch] {
	return db.thoughts
}

func (db *DB) Images() apiserver.Images {
	return (*images)(db)
}

func (db *DB) Sessions() apiserver.Sessions {
	return (*sessions)(db)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	tracer := otel.Tracer("folio/dblayer")
	ctx, s := tracer.Start(ctx, name)
	s.SetAttributes(attrs...)
	return ctx, func() { s.End() }
}

// table is one Firestore collection of records T, keyed by document ID.
type table[T, C, P any] struct {
	db         *DB
	collection string
	build      func(in C, id string, at time.Time) T
	apply      func(patch P, rec T) T
}

func (t *table[T, C, P]) List(ctx context.Context) ([]T, error) {
	ctx, end := span(ctx, t.collection+".List")
	defer end()

	out := []T{}
	iter := t.db.firestoreClient.Collection(t.collection).OrderBy("date", firestore.Desc).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while listing %s: %w", t.collection, err)
		}

		var rec T
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("while unmarshaling %s/%s: %w", t.collection, snap.Ref.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (t *table[T, C, P]) Get(ctx context.Context, id string) (T, error) {
	ctx, end := span(ctx, t.collection+".Get", attribute.String("id", id))
	defer end()

	var rec T
	snap, err := t.db.firestoreClient.Collection(t.collection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return rec, fmt.Errorf("%w: %s/%s", apitypes.ErrNotFound, t.collection, id)
	}
	if err != nil {
		return rec, fmt.Errorf("while retrieving %s/%s: %w", t.collection, id, err)
	}
	if err := snap.DataTo(&rec); err != nil {
		return rec, fmt.Errorf("while unmarshaling %s/%s: %w", t.collection, id, err)
	}
	return rec, nil
}

func (t *table[T, C, P]) Create(ctx context.Context, in C) (T, error) {
	ctx, end := span(ctx, t.collection+".Create")
	defer end()

	ref := t.db.firestoreClient.Collection(t.collection).NewDoc()
	rec := t.build(in, ref.ID, t.db.now().UTC())
	if _, err := ref.Create(ctx, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("while creating %s/%s: %w", t.collection, ref.ID, err)
	}
	return rec, nil
}

func (t *table[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	ctx, end := span(ctx, t.collection+".Update", attribute.String("id", id))
	defer end()

	ref := t.db.firestoreClient.Collection(t.collection).Doc(id)
	var rec T
	err := t.db.firestoreClient.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var cur T
		if err := snap.DataTo(&cur); err != nil {
			return fmt.Errorf("while unmarshaling %s/%s: %w", t.collection, id, err)
		}
		rec = t.apply(patch, cur)
		return tx.Set(ref, rec)
	})
	if isNotFound(err) {
		var zero T
		return zero, fmt.Errorf("%w: %s/%s", apitypes.ErrNotFound, t.collection, id)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("while updating %s/%s: %w", t.collection, id, err)
	}
	return rec, nil
}

func (t *table[T, C, P]) Delete(ctx context.Context, id string) error {
	ctx, end := span(ctx, t.collection+".Delete", attribute.String("id", id))
	defer end()

	ref := t.db.firestoreClient.Collection(t.collection).Doc(id)
	// Exists makes a missing document an error rather than a no-op.
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s/%s", apitypes.ErrNotFound, t.collection, id)
		}
		return fmt.Errorf("while deleting %s/%s: %w", t.collection, id, err)
	}
	return nil
}

type images DB

// objectName is where an image's bytes live in the bucket.
func objectName(id, filename string) string {
	return path.Join("gallery", id, path.Base("/"+filename))
}

func (im *images) List(ctx context.Context) ([]apitypes.Image, error) {
	ctx, end := span(ctx, "Images.List")
	defer end()

	out := []apitypes.Image{}
	iter := im.firestoreClient.Collection(imagesCollection).OrderBy("uploadedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while listing images: %w", err)
		}

		img := apitypes.Image{}
		if err := snap.DataTo(&img); err != nil {
			return nil, fmt.Errorf("while unmarshaling image %s: %w", snap.Ref.ID, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (im *images) Create(ctx context.Context, up apitypes.ImageUpload, contentType string) (apitypes.Image, error) {
	ctx, end := span(ctx, "Images.Create", attribute.String("filename", up.Filename))
	defer end()

	ref := im.firestoreClient.Collection(imagesCollection).NewDoc()
	img := apitypes.Image{
		ID:          ref.ID,
		Title:       up.Title,
		Description: up.Description,
		UploadedAt:  im.now().UTC(),
		StoragePath: objectName(ref.ID, up.Filename),
	}

	w := im.bucket.Object(img.StoragePath).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, up.Body); err != nil {
		w.Close()
		return apitypes.Image{}, fmt.Errorf("while writing object %s: %w", img.StoragePath, err)
	}
	if err := w.Close(); err != nil {
		return apitypes.Image{}, fmt.Errorf("while finalizing object %s: %w", img.StoragePath, err)
	}

	if _, err := ref.Create(ctx, img); err != nil {
		cleanupErr := im.bucket.Object(img.StoragePath).Delete(ctx)
		return apitypes.Image{}, createImageError(img, err, cleanupErr)
	}
	return img, nil
}

// createImageError reports a failed metadata write.  A failure to remove the
// already-written object is appended; the create error stays the one that
// errors.Is sees.
func createImageError(img apitypes.Image, err, cleanupErr error) error {
	if cleanupErr != nil {
		return fmt.Errorf("while creating image %s: %w (cleanup of object %s: %v)", img.ID, err, img.StoragePath, cleanupErr)
	}
	return fmt.Errorf("while creating image %s: %w", img.ID, err)
}

func (im *images) get(ctx context.Context, id string) (apitypes.Image, error) {
	snap, err := im.firestoreClient.Collection(imagesCollection).Doc(id).Get(ctx)
	if isNotFound(err) {
		return apitypes.Image{}, fmt.Errorf("%w: image %q", apitypes.ErrNotFound, id)
	}
	if err != nil {
		return apitypes.Image{}, fmt.Errorf("while retrieving image %s: %w", id, err)
	}
	img := apitypes.Image{}
	if err := snap.DataTo(&img); err != nil {
		return apitypes.Image{}, fmt.Errorf("while unmarshaling image %s: %w", id, err)
	}
	return img, nil
}

func (im *images) Delete(ctx context.Context, id string) error {
	ctx, end := span(ctx, "Images.Delete", attribute.String("id", id))
	defer end()

	img, err := im.get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := im.firestoreClient.Collection(imagesCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("while deleting image %s: %w", id, err)
	}
	if err := im.bucket.Object(img.StoragePath).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("while deleting object %s: %w", img.StoragePath, err)
	}
	return nil
}

func (im *images) Open(ctx context.Context, id string) (io.ReadCloser, string, error) {
	ctx, end := span(ctx, "Images.Open", attribute.String("id", id))
	defer end()

	img, err := im.get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	r, err := im.bucket.Object(img.StoragePath).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return nil, "", fmt.Errorf("%w: object for image %q", apitypes.ErrNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("while opening object %s: %w", img.StoragePath, err)
	}
	return r, r.Attrs.ContentType, nil
}

// userDoc is a stored account.
type userDoc struct {
	apitypes.User
	PasswordHash string `firestore:"passwordHash"`
}

// sessionDoc is one login.  Refresh replaces Token and Expires in place;
// RefreshToken lives as long as the document.
type sessionDoc struct {
	Token        string                 `firestore:"token"`
	RefreshToken string                 `firestore:"refreshToken"`
	User         *firestore.DocumentRef `firestore:"user"`
	Expires      time.Time              `firestore:"expires"`
}

type sessions DB

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("while generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// first returns the first document matching field == value, or nil.
func (s *sessions) first(ctx context.Context, collection, field, value string) (*firestore.DocumentSnapshot, error) {
	return firstDoc(ctx, s.firestoreClient, collection, field, value)
}

func firstDoc(ctx context.Context, client *firestore.Client, collection, field, value string) (*firestore.DocumentSnapshot, error) {
	iter := client.Collection(collection).Where(field, "==", value).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while looking up %s by %s: %w", collection, field, err)
	}
	return snap, nil
}

func (s *sessions) LogIn(ctx context.Context, creds apitypes.Credentials) (apitypes.AuthResponse, error) {
	ctx, end := span(ctx, "Sessions.LogIn")
	defer end()

	userSnap, err := s.first(ctx, usersCollection, "email", creds.Email)
	if err != nil {
		return apitypes.AuthResponse{}, err
	}
	if userSnap == nil {
		return apitypes.AuthResponse{}, fmt.Errorf("%w: unknown user or wrong password", apitypes.ErrAuth)
	}

	user := userDoc{}
	if err := userSnap.DataTo(&user); err != nil {
		return apitypes.AuthResponse{}, fmt.Errorf("while unmarshaling user %q: %w", creds.Email, err)
	}
	if err := checkPassword(user.PasswordHash, creds.Password); err != nil {
		return apitypes.AuthResponse{}, err
	}
	if user.ID == "" {
		user.ID = userSnap.Ref.ID
	}

	token, err := newToken()
	if err != nil {
		return apitypes.AuthResponse{}, err
	}
	refresh, err := newToken()
	if err != nil {
		return apitypes.AuthResponse{}, err
	}

	doc := sessionDoc{
		Token:        token,
		RefreshToken: refresh,
		User:         userSnap.Ref,
		Expires:      s.now().Add(apiserver.SessionLifetime),
	}
	if _, _, err := s.firestoreClient.Collection(sessionsCollection).Add(ctx, doc); err != nil {
		return apitypes.AuthResponse{}, fmt.Errorf("while storing session: %w", err)
	}

	return apitypes.AuthResponse{User: user.User, Token: token, RefreshToken: refresh}, nil
}

func (s *sessions) LogOut(ctx context.Context, token string) error {
	ctx, end := span(ctx, "Sessions.LogOut")
	defer end()

	snap, err := s.first(ctx, sessionsCollection, "token", token)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("%w: unknown token", apitypes.ErrAuth)
	}
	if _, err := snap.Ref.Delete(ctx, firestore.LastUpdateTime(snap.UpdateTime)); err != nil {
		return fmt.Errorf("while deleting session: %w", err)
	}
	return nil
}

func (s *sessions) Refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, end := span(ctx, "Sessions.Refresh")
	defer end()

	snap, err := s.first(ctx, sessionsCollection, "refreshToken", refreshToken)
	if err != nil {
		return "", err
	}
	if snap == nil {
		return "", fmt.Errorf("%w: unknown refresh token", apitypes.ErrAuth)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	updates := []firestore.Update{
		{Path: "token", Value: token},
		{Path: "expires", Value: s.now().Add(apiserver.SessionLifetime)},
	}
	if _, err := snap.Ref.Update(ctx, updates, firestore.LastUpdateTime(snap.UpdateTime)); err != nil {
		return "", fmt.Errorf("while rotating session token: %w", err)
	}
	return token, nil
}

func (s *sessions) UserForToken(ctx context.Context, token string) (apitypes.User, error) {
	ctx, end := span(ctx, "Sessions.UserForToken")
	defer end()

	snap, err := s.first(ctx, sessionsCollection, "token", token)
	if err != nil {
		return apitypes.User{}, err
	}
	if snap == nil {
		return apitypes.User{}, fmt.Errorf("%w: unknown token", apitypes.ErrAuth)
	}

	session := sessionDoc{}
	if err := snap.DataTo(&session); err != nil {
		return apitypes.User{}, fmt.Errorf("while unmarshaling session: %w", err)
	}
	if session.Expires.Before(s.now()) {
		return apitypes.User{}, fmt.Errorf("%w: token expired", apitypes.ErrAuth)
	}

	userSnap, err := session.User.Get(ctx)
	if err != nil {
		return apitypes.User{}, fmt.Errorf("while getting user linked from session: %w", err)
	}
	user := userDoc{}
	if err := userSnap.DataTo(&user); err != nil {
		return apitypes.User{}, fmt.Errorf("while unmarshaling user: %w", err)
	}
	if user.ID == "" {
		user.ID = userSnap.Ref.ID
	}
	return user.User, nil
}
