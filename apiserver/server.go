// Package apiserver is the reference implementation of the content API that
// the gateway package talks to.
package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"folio/apitypes"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20
)

// Notifier hears about newly published posts.
type Notifier interface {
	PostPublished(ctx context.Context, post apitypes.Post) error
}

type Server struct {
	backend  Backend
	notifier Notifier
}

// New creates a Server.  notifier may be nil.
func New(backend Backend, notifier Notifier) *Server {
	return &Server{
		backend:  backend,
		notifier: notifier,
	}
}

func (s *Server) Register(m *http.ServeMux) {
	m.HandleFunc("POST /api/auth/login", s.logInHandler)
	m.HandleFunc("POST /api/auth/logout", s.logOutHandler)
	m.HandleFunc("POST /api/auth/refresh", s.refreshHandler)
	m.HandleFunc("GET /api/auth/me", s.meHandler)

	posts := &resourceHandler[apitypes.Post, apitypes.NewPost, apitypes.PostPatch]{
		s:       s,
		name:    "post",
		records: s.backend.Posts,
		created: s.postCreated,
	}
	posts.register(m, "/api/blog")

	thoughts := &resourceHandler[apitypes.Thought, apitypes.NewThought, apitypes.ThoughtPatch]{
		s:       s,
		name:    "thought",
		records: s.backend.Thoughts,
	}
	thoughts.register(m, "/api/thoughts")

	m.HandleFunc("GET /api/gallery", s.listImagesHandler)
	m.HandleFunc("POST /api/gallery/upload", s.uploadImageHandler)
	m.HandleFunc("DELETE /api/gallery/{id}", s.deleteImageHandler)
	m.HandleFunc("GET /api/gallery/{id}/file", s.imageFileHandler)
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apitypes.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apitypes.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apitypes.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		glog.Errorf("Error while serving %s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	}
	writeJSON(w, code, &errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		glog.Errorf("Error while marshaling response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		// It's too late to write an error to the HTTP response.
		glog.Errorf("Error while writing output: %v", err)
	}
}

func readJSON(r *http.Request, v interface{}) error {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return fmt.Errorf("%w: want Content-Type application/json", apitypes.ErrValidation)
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", apitypes.ErrValidation, err)
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("%w: missing bearer token", apitypes.ErrAuth)
	}
	return token, nil
}

// authenticate resolves the request's bearer token to a user.
func (s *Server) authenticate(r *http.Request) (apitypes.User, error) {
	token, err := bearerToken(r)
	if err != nil {
		return apitypes.User{}, err
	}
	return s.backend.Sessions().UserForToken(r.Context(), token)
}

func (s *Server) logInHandler(w http.ResponseWriter, r *http.Request) {
	creds := apitypes.Credentials{}
	if err := readJSON(r, &creds); err != nil {
		writeError(w, r, err)
		return
	}
	if err := creds.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.backend.Sessions().LogIn(r.Context(), creds)
	if err != nil {
		glog.Infof("Rejected login for %q: %v", creds.Email, err)
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logOutHandler(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.backend.Sessions().LogOut(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	req := refreshRequest{}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, fmt.Errorf("%w: missing refresh token", apitypes.ErrAuth))
		return
	}

	token, err := s.backend.Sessions().Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &refreshResponse{Token: token})
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type validator interface {
	Validate() error
}

// resourceHandler serves CRUD for one collection.  Reads are public; writes
// need a bearer token.
type resourceHandler[T any, C validator, P validator] struct {
	s       *Server
	name    string
	records func() Records[T, C, P]

	// created, if set, runs after a successful create.
	created func(ctx context.Context, rec T)
}

func (h *resourceHandler[T, C, P]) register(m *http.ServeMux, prefix string) {
	m.HandleFunc("GET "+prefix, h.list)
	m.HandleFunc("POST "+prefix, h.create)
	m.HandleFunc("GET "+prefix+"/{id}", h.get)
	m.HandleFunc("PUT "+prefix+"/{id}", h.update)
	m.HandleFunc("DELETE "+prefix+"/{id}", h.delete)
}

func (h *resourceHandler[T, C, P]) span(r *http.Request, op string) (context.Context, func()) {
	tracer := otel.Tracer("folio/apiserver")
	ctx, span := tracer.Start(r.Context(), h.name+"."+op, trace.WithSpanKind(trace.SpanKindServer))
	if id := r.PathValue("id"); id != "" {
		span.SetAttributes(attribute.String("folio.id", id))
	}
	return ctx, func() { span.End() }
}

func (h *resourceHandler[T, C, P]) list(w http.ResponseWriter, r *http.Request) {
	ctx, end := h.span(r, "List")
	defer end()

	recs, err := h.records().List(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *resourceHandler[T, C, P]) get(w http.ResponseWriter, r *http.Request) {
	ctx, end := h.span(r, "Get")
	defer end()

	rec, err := h.records().Get(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *resourceHandler[T, C, P]) create(w http.ResponseWriter, r *http.Request) {
	ctx, end := h.span(r, "Create")
	defer end()

	if _, err := h.s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	var in C
	if err := readJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.records().Create(ctx, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.created != nil {
		h.created(ctx, rec)
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *resourceHandler[T, C, P]) update(w http.ResponseWriter, r *http.Request) {
	ctx, end := h.span(r, "Update")
	defer end()

	if _, err := h.s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	var patch P
	if err := readJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if err := patch.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.records().Update(ctx, r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *resourceHandler[T, C, P]) delete(w http.ResponseWriter, r *http.Request) {
	ctx, end := h.span(r, "Delete")
	defer end()

	if _, err := h.s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.records().Delete(ctx, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postCreated(ctx context.Context, post apitypes.Post) {
	if s.notifier == nil {
		return
	}
	// Publishing has already succeeded; a lost notice is only logged.
	if err := s.notifier.PostPublished(ctx, post); err != nil {
		glog.Errorf("Error while sending publication notice for post %q: %v", post.ID, err)
	}
}

func imageFileURL(id string) string {
	return "/api/gallery/" + url.PathEscape(id) + "/file"
}

func withURL(img apitypes.Image) apitypes.Image {
	img.URL = imageFileURL(img.ID)
	return img
}

func (s *Server) listImagesHandler(w http.ResponseWriter, r *http.Request) {
	imgs, err := s.backend.Images().List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range imgs {
		imgs[i] = withURL(imgs[i])
	}
	writeJSON(w, http.StatusOK, imgs)
}

func (s *Server) uploadImageHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		writeError(w, r, fmt.Errorf("%w: bad multipart body: %v", apitypes.ErrValidation, err))
		return
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: missing file part: %v", apitypes.ErrValidation, err))
		return
	}
	defer f.Close()

	// The client's Content-Type for the part is ignored.
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeError(w, r, fmt.Errorf("while reading upload: %w", err))
		return
	}
	contentType := http.DetectContentType(head[:n])
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, r, fmt.Errorf("%w: %q is %s, not an image", apitypes.ErrValidation, hdr.Filename, contentType))
		return
	}

	up := apitypes.ImageUpload{
		Filename:    hdr.Filename,
		Body:        io.MultiReader(bytes.NewReader(head[:n]), f),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}
	if err := up.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	img, err := s.backend.Images().Create(r.Context(), up, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withURL(img))
}

func (s *Server) deleteImageHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.backend.Images().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) imageFileHandler(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := s.backend.Images().Open(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		// It's too late to write an error to the HTTP response.
		glog.Errorf("Error while writing image %q: %v", r.PathValue("id"), err)
	}
}
