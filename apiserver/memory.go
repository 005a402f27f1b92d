package apiserver

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"folio/apitypes"

	"golang.org/x/crypto/bcrypt"
)

// SessionLifetime is how long an issued token stays valid.
const SessionLifetime = 18 * time.Hour

// MemoryBackend keeps everything in process memory.  It backs the tests and
// local runs.
type MemoryBackend struct {
	now func() time.Time

	posts    *memTable[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]
	thoughts *memTable[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]
	images   *memImages
	sessions *memSessions
}

func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}

	b := &MemoryBackend{now: now}
	b.posts = &memTable[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]{
		kind: "post",
		now:  now,
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
		apply:   apitypes.PostPatch.Apply,
		created: func(p apitypes.Post) time.Time { return p.CreatedAt },
	}
	b.thoughts = &memTable[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]{
		kind: "thought",
		now:  now,
		build: func(n apitypes.NewThought, id string, at time.Time) apitypes.Thought {
			return apitypes.Thought{ID: id, Content: n.Content, CreatedAt: at}
		},
		apply:   apitypes.ThoughtPatch.Apply,
		created: func(t apitypes.Thought) time.Time { return t.CreatedAt },
	}
	b.images = &memImages{now: now, blobs: map[string]memBlob{}}
	b.sessions = &memSessions{
		now:      now,
		users:    map[string]memUser{},
		tokens:   map[string]memSession{},
		refreshs: map[string]string{},
	}
	return b
}

func (b *MemoryBackend) Posts() Records[apitypes.Post, apitypes.NewPost, apitypes.PostPatch] {
	return b.posts
}

func (b *MemoryBackend) Thoughts() Records[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch] {
	return b.thoughts
}

func (b *MemoryBackend) Images() Images {
	return b.images
}

func (b *MemoryBackend) Sessions() Sessions {
	return b.sessions
}

// AddUser creates an account that can log in with password.
func (b *MemoryBackend) AddUser(user apitypes.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("while hashing password: %w", err)
	}

	b.sessions.lock.Lock()
	defer b.sessions.lock.Unlock()
	if user.ID == "" {
		user.ID = "user-" + strconv.Itoa(len(b.sessions.users)+1)
	}
	b.sessions.users[user.Email] = memUser{user: user, passwordHash: hash}
	return nil
}

type memTable[T, C, P any] struct {
	kind    string
	now     func() time.Time
	build   func(in C, id string, at time.Time) T
	apply   func(patch P, rec T) T
	created func(rec T) time.Time

	lock    sync.Mutex
	nextID  int
	records map[string]T
}

func (m *memTable[T, C, P]) List(ctx context.Context) ([]T, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]T, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	// Newest first; ties go to the later id.
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := m.created(out[i]), m.created(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return recordSeq(out[i]) > recordSeq(out[j])
	})
	return out, nil
}

func recordSeq(rec any) int {
	r, ok := rec.(interface{ RecordID() string })
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(r.RecordID())
	return n
}

func (m *memTable[T, C, P]) Get(ctx context.Context, id string) (T, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rec, ok := m.records[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", apitypes.ErrNotFound, m.kind, id)
	}
	return rec, nil
}

func (m *memTable[T, C, P]) Create(ctx context.Context, in C) (T, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.records == nil {
		m.records = map[string]T{}
	}
	m.nextID++
	id := strconv.Itoa(m.nextID)
	rec := m.build(in, id, m.now().UTC())
	m.records[id] = rec
	return rec, nil
}

func (m *memTable[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	rec, ok := m.records[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s %q", apitypes.ErrNotFound, m.kind, id)
	}
	rec = m.apply(patch, rec)
	m.records[id] = rec
	return rec, nil
}

func (m *memTable[T, C, P]) Delete(ctx context.Context, id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s %q", apitypes.ErrNotFound, m.kind, id)
	}
	delete(m.records, id)
	return nil
}

type memBlob struct {
	image       apitypes.Image
	data        []byte
	contentType string
}

type memImages struct {
	now func() time.Time

	lock   sync.Mutex
	nextID int
	blobs  map[string]memBlob
}

func (m *memImages) List(ctx context.Context) ([]apitypes.Image, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]apitypes.Image, 0, len(m.blobs))
	for _, b := range m.blobs {
		out = append(out, b.image)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return recordSeq(out[i]) > recordSeq(out[j])
	})
	return out, nil
}

func (m *memImages) Create(ctx context.Context, up apitypes.ImageUpload, contentType string) (apitypes.Image, error) {
	data, err := io.ReadAll(up.Body)
	if err != nil {
		return apitypes.Image{}, fmt.Errorf("while reading upload %q: %w", up.Filename, err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.nextID++
	id := strconv.Itoa(m.nextID)
	img := apitypes.Image{
		ID:          id,
		Title:       up.Title,
		Description: up.Description,
		UploadedAt:  m.now().UTC(),
		StoragePath: up.Filename,
	}
	m.blobs[id] = memBlob{image: img, data: data, contentType: contentType}
	return img, nil
}

func (m *memImages) Delete(ctx context.Context, id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.blobs[id]; !ok {
		return fmt.Errorf("%w: image %q", apitypes.ErrNotFound, id)
	}
	delete(m.blobs, id)
	return nil
}

func (m *memImages) Open(ctx context.Context, id string) (io.ReadCloser, string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	b, ok := m.blobs[id]
	if !ok {
		return nil, "", fmt.Errorf("%w: image %q", apitypes.ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(b.data)), b.contentType, nil
}

type memUser struct {
	user         apitypes.User
	passwordHash []byte
}

type memSession struct {
	email string

	// refresh is the refresh token of the login this token descends from.
	refresh string
	expires time.Time
}

type memSessions struct {
	now func() time.Time

	lock     sync.Mutex
	users    map[string]memUser
	tokens   map[string]memSession
	refreshs map[string]string
}

// newToken returns a random opaque token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("while generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (m *memSessions) LogIn(ctx context.Context, creds apitypes.Credentials) (apitypes.AuthResponse, error) {
	m.lock.Lock()
	u, ok := m.users[creds.Email]
	m.lock.Unlock()
	if !ok {
		return apitypes.AuthResponse{}, fmt.Errorf("%w: unknown user or wrong password", apitypes.ErrAuth)
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(creds.Password)); err != nil {
		return apitypes.AuthResponse{}, fmt.Errorf("%w: unknown user or wrong password", apitypes.ErrAuth)
	}

	token, err := newToken()
	if err != nil {
		return apitypes.AuthResponse{}, err
	}
	refresh, err := newToken()
	if err != nil {
		return apitypes.AuthResponse{}, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.tokens[token] = memSession{email: creds.Email, refresh: refresh, expires: m.now().Add(SessionLifetime)}
	m.refreshs[refresh] = creds.Email

	return apitypes.AuthResponse{User: u.user, Token: token, RefreshToken: refresh}, nil
}

func (m *memSessions) LogOut(ctx context.Context, token string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.tokens[token]
	if !ok {
		return fmt.Errorf("%w: unknown token", apitypes.ErrAuth)
	}
	// Logging out ends the whole login: its refresh token and every token
	// minted from it.
	delete(m.refreshs, s.refresh)
	for t, other := range m.tokens {
		if other.refresh == s.refresh {
			delete(m.tokens, t)
		}
	}
	return nil
}

func (m *memSessions) Refresh(ctx context.Context, refreshToken string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	email, ok := m.refreshs[refreshToken]
	if !ok {
		return "", fmt.Errorf("%w: unknown refresh token", apitypes.ErrAuth)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	m.tokens[token] = memSession{email: email, refresh: refreshToken, expires: m.now().Add(SessionLifetime)}
	return token, nil
}

func (m *memSessions) UserForToken(ctx context.Context, token string) (apitypes.User, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.tokens[token]
	if !ok {
		return apitypes.User{}, fmt.Errorf("%w: unknown token", apitypes.ErrAuth)
	}
	if s.expires.Before(m.now()) {
		delete(m.tokens, token)
		return apitypes.User{}, fmt.Errorf("%w: token expired", apitypes.ErrAuth)
	}
	return m.users[s.email].user, nil
}
