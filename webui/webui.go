// Package webui renders the site from the content and session stores.
package webui

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"folio/apitypes"
	"folio/contentstore"
	"folio/session"
	"folio/webui/uitemplates"

	"github.com/golang/glog"
)

type WebUI struct {
	posts    *contentstore.PostStore
	thoughts *contentstore.ThoughtStore
	gallery  *contentstore.GalleryStore
	session  *session.Store

	// Renders of a page that shows a store refresh it until one refresh
	// succeeds.  The lock keeps concurrent first renders from piling up.
	postsMounted    sync.Mutex
	thoughtsMounted sync.Mutex
	galleryMounted  sync.Mutex
}

func New(posts *contentstore.PostStore, thoughts *contentstore.ThoughtStore, gallery *contentstore.GalleryStore, sess *session.Store) *WebUI {
	return &WebUI{
		posts:    posts,
		thoughts: thoughts,
		gallery:  gallery,
		session:  sess,
	}
}

// Register mounts the site on m behind cross-origin protection, which rejects
// state-changing requests sent from other origins.
func (u *WebUI) Register(m *http.ServeMux) {
	site := http.NewServeMux()
	u.register(site)
	m.Handle("/", http.NewCrossOriginProtection().Handler(site))
}

func (u *WebUI) register(m *http.ServeMux) {
	m.HandleFunc("/", u.homeHandler)
	m.HandleFunc("/about", u.aboutHandler)
	m.HandleFunc("/skills", u.skillsHandler)
	m.HandleFunc("/projects", u.projectsHandler)
	m.HandleFunc("/blog", u.blogHandler)
	m.HandleFunc("/blog/", u.blogPostHandler)
	m.HandleFunc("/thoughts", u.thoughtsHandler)
	m.HandleFunc("/gallery", u.galleryHandler)
	m.HandleFunc("/log-in", u.logInHandler)
	m.HandleFunc("/log-out", u.logOutHandler)
	m.HandleFunc("/dashboard", u.dashboardHandler)
	m.HandleFunc("/dashboard/posts/create", u.mutationHandler(u.createPost))
	m.HandleFunc("/dashboard/posts/update", u.mutationHandler(u.updatePost))
	m.HandleFunc("/dashboard/posts/delete", u.mutationHandler(u.deletePost))
	m.HandleFunc("/dashboard/thoughts/create", u.mutationHandler(u.createThought))
	m.HandleFunc("/dashboard/thoughts/update", u.mutationHandler(u.updateThought))
	m.HandleFunc("/dashboard/thoughts/delete", u.mutationHandler(u.deleteThought))
	m.HandleFunc("/dashboard/gallery/upload", u.mutationHandler(u.uploadImage))
	m.HandleFunc("/dashboard/gallery/delete", u.mutationHandler(u.deleteImage))
}

type mountable interface {
	contentstore.Refresher
	Refreshed() bool
}

func mount(ctx context.Context, lock *sync.Mutex, store mountable) {
	lock.Lock()
	defer lock.Unlock()
	if store.Refreshed() {
		return
	}
	glog.Infof("Rendering %s before it has loaded; refreshing", store.Name())
	store.Refresh(context.WithoutCancel(ctx))
}

func (u *WebUI) common(r *http.Request) uitemplates.Common {
	c := uitemplates.Common{
		UserError: r.URL.Query().Get("user-error"),
	}
	if sess, ok := u.session.Current(); ok {
		c.ActiveUser = uitemplates.ActiveUserParams{
			LoggedIn:    true,
			DisplayName: sess.DisplayName,
			Email:       sess.Email,
		}
	}
	return c
}

func writePage(w http.ResponseWriter, code int, page []byte, err error) {
	if err != nil {
		glog.Errorf("Error while rendering page: %v", err)
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write(page); err != nil {
		// It's too late to write an error to the HTTP response.
		glog.Errorf("Error while writing output: %v", err)
		return
	}
}

func (u *WebUI) notFound(w http.ResponseWriter, r *http.Request) {
	page, err := uitemplates.NotFoundPage(&uitemplates.NotFoundParams{
		Common: u.common(r),
		Path:   r.URL.Path,
	})
	writePage(w, http.StatusNotFound, page, err)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

func summarize(p apitypes.Post) *uitemplates.PostSummary {
	return &uitemplates.PostSummary{
		Title:   p.Title,
		Excerpt: p.Excerpt,
		Author:  p.Author,
		Date:    formatDate(p.CreatedAt),
		Link:    "/blog/" + url.PathEscape(p.ID),
	}
}

// homeHandler renders the home page, and the 404 page for any path nothing
// else claims.
func (u *WebUI) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		u.notFound(w, r)
		return
	}

	mount(r.Context(), &u.postsMounted, u.posts)

	params := &uitemplates.HomeParams{Common: u.common(r)}
	for i, p := range u.posts.Items() {
		if i == 3 {
			break
		}
		params.LatestPosts = append(params.LatestPosts, summarize(p))
	}

	page, err := uitemplates.HomePage(params)
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) aboutHandler(w http.ResponseWriter, r *http.Request) {
	page, err := uitemplates.AboutPage(&uitemplates.AboutParams{Common: u.common(r)})
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) skillsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := uitemplates.SkillsPage(&uitemplates.SkillsParams{
		Common:     u.common(r),
		Categories: skillCategories,
	})
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) projectsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := uitemplates.ProjectsPage(&uitemplates.ProjectsParams{
		Common:   u.common(r),
		Projects: projects,
	})
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) blogHandler(w http.ResponseWriter, r *http.Request) {
	mount(r.Context(), &u.postsMounted, u.posts)

	params := &uitemplates.BlogParams{
		Common:  u.common(r),
		Loading: u.posts.IsLoading(),
	}
	for _, p := range u.posts.Items() {
		params.Posts = append(params.Posts, summarize(p))
	}

	page, err := uitemplates.BlogPage(params)
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) blogPostHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/blog/")
	if id == "" || strings.Contains(id, "/") {
		u.notFound(w, r)
		return
	}

	mount(r.Context(), &u.postsMounted, u.posts)

	p, ok := u.posts.GetByID(id)
	if !ok {
		u.notFound(w, r)
		return
	}

	page, err := uitemplates.BlogPostPage(&uitemplates.BlogPostParams{
		Common:  u.common(r),
		Title:   p.Title,
		Author:  p.Author,
		Date:    formatDate(p.CreatedAt),
		Image:   p.Image,
		Content: template.HTML(p.Content),
	})
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) thoughtsHandler(w http.ResponseWriter, r *http.Request) {
	mount(r.Context(), &u.thoughtsMounted, u.thoughts)

	params := &uitemplates.ThoughtsParams{
		Common:  u.common(r),
		Loading: u.thoughts.IsLoading(),
	}
	for _, t := range u.thoughts.Items() {
		params.Thoughts = append(params.Thoughts, &uitemplates.ThoughtItem{
			Content: t.Content,
			Date:    formatDate(t.CreatedAt),
		})
	}

	page, err := uitemplates.ThoughtsPage(params)
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) galleryHandler(w http.ResponseWriter, r *http.Request) {
	mount(r.Context(), &u.galleryMounted, u.gallery)

	params := &uitemplates.GalleryParams{
		Common:  u.common(r),
		Loading: u.gallery.IsLoading(),
	}
	for _, img := range u.gallery.Items() {
		params.Images = append(params.Images, &uitemplates.GalleryItem{
			URL:         img.URL,
			Title:       img.Title,
			Description: img.Description,
			Date:        formatDate(img.UploadedAt),
		})
	}

	page, err := uitemplates.GalleryPage(params)
	writePage(w, http.StatusOK, page, err)
}

func logInLink(userError, redirectTarget string) string {
	q := url.Values{}
	if userError != "" {
		q.Add("user-error", userError)
	}
	if redirectTarget != "" {
		q.Add("redirect-target", redirectTarget)
	}
	link := &url.URL{
		Path:     "/log-in",
		RawQuery: q.Encode(),
	}
	return link.String()
}

func dashboardLink(userError string) string {
	q := url.Values{}
	if userError != "" {
		q.Add("user-error", userError)
	}
	link := &url.URL{
		Path:     "/dashboard",
		RawQuery: q.Encode(),
	}
	return link.String()
}

// localTarget reports whether target is a path on this site, so a login form
// can't be used to bounce the user elsewhere.
func localTarget(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, "/\\")
}

// userMessage turns a store failure into something to show the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apitypes.ErrValidation):
		return err.Error()
	case errors.Is(err, apitypes.ErrAuth):
		return "Not authorized. Try logging in again."
	case errors.Is(err, apitypes.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, apitypes.ErrNetwork):
		return "Could not reach the content server."
	default:
		return "Internal error."
	}
}

func (u *WebUI) logInHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		u.logInGetHandler(w, r)
	case http.MethodPost:
		u.logInPostHandler(w, r)
	default:
		glog.Errorf("Returning Bad Request because logInHandler doesn't support method %q", r.Method)
		http.Error(w, "Bad Request", http.StatusBadRequest)
	}
}

func (u *WebUI) logInGetHandler(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("redirect-target")

	if u.session.IsAuthenticated() {
		// Already logged in.
		if localTarget(target) {
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	page, err := uitemplates.LogInPage(&uitemplates.LogInParams{
		Common:         u.common(r),
		RedirectTarget: target,
	})
	writePage(w, http.StatusOK, page, err)
}

func (u *WebUI) logInPostHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		glog.Errorf("Error while parsing form: %v", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	target := r.PostForm.Get("redirect-target")

	creds := apitypes.Credentials{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}
	if _, err := u.session.Login(r.Context(), creds); err != nil {
		glog.Errorf("Error while logging in as %q: %v", creds.Email, err)
		msg := userMessage(err)
		if errors.Is(err, apitypes.ErrAuth) {
			msg = "Unknown user or wrong password"
		}
		http.Redirect(w, r, logInLink(msg, target), http.StatusFound)
		return
	}

	if localTarget(target) {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (u *WebUI) logOutHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, err := uitemplates.LogOutPage(&uitemplates.LogOutParams{Common: u.common(r)})
		writePage(w, http.StatusOK, page, err)
	case http.MethodPost:
		if err := u.session.Logout(r.Context()); err != nil {
			glog.Errorf("Error while logging out: %v", err)
		}
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		glog.Errorf("Returning Bad Request because logOutHandler doesn't support method %q", r.Method)
		http.Error(w, "Bad Request", http.StatusBadRequest)
	}
}

// checkSession redirects to the login page if there is no session.  The check
// happens at render time.
func (u *WebUI) checkSession(w http.ResponseWriter, r *http.Request, redirectAfterLogin string) bool {
	if u.session.IsAuthenticated() {
		return true
	}
	glog.Infof("No session for %s; redirecting to login.", r.URL.Path)
	http.Redirect(w, r, logInLink("", redirectAfterLogin), http.StatusFound)
	return false
}

func (u *WebUI) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if !u.checkSession(w, r, "/dashboard") {
		return
	}

	ctx := r.Context()
	mount(ctx, &u.postsMounted, u.posts)
	mount(ctx, &u.thoughtsMounted, u.thoughts)
	mount(ctx, &u.galleryMounted, u.gallery)

	params := &uitemplates.DashboardParams{Common: u.common(r)}
	for _, p := range u.posts.Items() {
		params.Posts = append(params.Posts, &uitemplates.DashboardPost{
			ID:      p.ID,
			Title:   p.Title,
			Excerpt: p.Excerpt,
			Content: p.Content,
			Author:  p.Author,
			Image:   p.Image,
			Date:    formatDate(p.CreatedAt),
		})
	}
	for _, t := range u.thoughts.Items() {
		params.Thoughts = append(params.Thoughts, &uitemplates.DashboardThought{
			ID:      t.ID,
			Content: t.Content,
			Date:    formatDate(t.CreatedAt),
		})
	}
	for _, img := range u.gallery.Items() {
		params.Images = append(params.Images, &uitemplates.DashboardImage{
			ID:    img.ID,
			URL:   img.URL,
			Title: img.Title,
		})
	}

	page, err := uitemplates.DashboardPage(params)
	writePage(w, http.StatusOK, page, err)
}

// mutationHandler wraps one dashboard form action.  Success goes back to the
// dashboard; failure goes back with the reason as a user error.
func (u *WebUI) mutationHandler(do func(ctx context.Context, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			glog.Errorf("Returning Bad Request because %s doesn't support method %q", r.URL.Path, r.Method)
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}

		if !u.checkSession(w, r, "/dashboard") {
			return
		}

		if err := do(r.Context(), r); err != nil {
			glog.Errorf("Error while handling %s: %v", r.URL.Path, err)
			http.Redirect(w, r, dashboardLink(userMessage(err)), http.StatusFound)
			return
		}

		http.Redirect(w, r, dashboardLink(""), http.StatusFound)
	}
}

func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: while parsing form: %w", apitypes.ErrValidation, err)
	}
	return nil
}

func (u *WebUI) createPost(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	_, err := u.posts.Add(ctx, apitypes.NewPost{
		Title:   r.PostForm.Get("title"),
		Excerpt: r.PostForm.Get("excerpt"),
		Content: r.PostForm.Get("content"),
		Author:  r.PostForm.Get("author"),
		Image:   r.PostForm.Get("image"),
	})
	return err
}

// changed returns a pointer to the submitted value of field if it was
// submitted and differs from cur.
func changed(form url.Values, field, cur string) *string {
	if _, ok := form[field]; !ok {
		return nil
	}
	if v := form.Get(field); v != cur {
		return &v
	}
	return nil
}

func (u *WebUI) updatePost(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	id := r.PostForm.Get("id")
	cur, ok := u.posts.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: post %q", apitypes.ErrNotFound, id)
	}

	_, err := u.posts.Update(ctx, id, apitypes.PostPatch{
		Title:   changed(r.PostForm, "title", cur.Title),
		Excerpt: changed(r.PostForm, "excerpt", cur.Excerpt),
		Content: changed(r.PostForm, "content", cur.Content),
		Author:  changed(r.PostForm, "author", cur.Author),
		Image:   changed(r.PostForm, "image", cur.Image),
	})
	return err
}

func (u *WebUI) deletePost(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	return u.posts.Remove(ctx, r.PostForm.Get("id"))
}

func (u *WebUI) createThought(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	_, err := u.thoughts.Add(ctx, apitypes.NewThought{Content: r.PostForm.Get("content")})
	return err
}

func (u *WebUI) updateThought(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	id := r.PostForm.Get("id")
	cur, ok := u.thoughts.GetByID(id)
	if !ok {
		return fmt.Errorf("%w: thought %q", apitypes.ErrNotFound, id)
	}

	_, err := u.thoughts.Update(ctx, id, apitypes.ThoughtPatch{
		Content: changed(r.PostForm, "content", cur.Content),
	})
	return err
}

func (u *WebUI) deleteThought(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	return u.thoughts.Remove(ctx, r.PostForm.Get("id"))
}

const maxUploadMemory = 32 << 20

func (u *WebUI) uploadImage(ctx context.Context, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return fmt.Errorf("%w: while parsing upload: %w", apitypes.ErrValidation, err)
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: no file chosen: %w", apitypes.ErrValidation, err)
	}
	defer f.Close()

	_, err = u.gallery.Upload(ctx, apitypes.ImageUpload{
		Filename:    hdr.Filename,
		Body:        f,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	})
	return err
}

func (u *WebUI) deleteImage(ctx context.Context, r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	return u.gallery.Remove(ctx, r.PostForm.Get("id"))
}
