package uitemplates

import "html/template"

type PostSummary struct {
	Title   string
	Excerpt string
	Author  string
	Date    string
	Link    string
}

type BlogParams struct {
	Common

	Loading bool
	Posts   []*PostSummary
}

var blogText = `
{{define "title"}}Blog{{end}}

{{define "content"}}
<h1>Blog</h1>

{{if .Loading}}<p class="text-muted">Loading...</p>{{end}}

{{range .Posts}}
<article class="mb-4">
  <h2><a href="{{.Link}}">{{.Title}}</a></h2>
  <p class="text-muted">{{.Author}} &middot; {{.Date}}</p>
  <p>{{.Excerpt}}</p>
</article>
{{else}}
{{if not .Loading}}<p>No posts yet.</p>{{end}}
{{end}}
{{end}}
`

var blogTemplate = mustParse(blogText)

func BlogPage(params *BlogParams) ([]byte, error) {
	return render(blogTemplate, params)
}

type BlogPostParams struct {
	Common

	Title  string
	Author string
	Date   string
	Image  string

	// Content is the author's own markup.
	Content template.HTML
}

var blogPostText = `
{{define "title"}}{{.Title}}{{end}}

{{define "content"}}
<p><a href="/blog">&larr; Back to Blog</a></p>
<article>
  <h1>{{.Title}}</h1>
  <p class="text-muted">{{.Author}} &middot; {{.Date}}</p>
  {{with .Image}}<img class="img-fluid mb-3" src="{{.}}" alt="">{{end}}
  <div>{{.Content}}</div>
</article>
{{end}}
`

var blogPostTemplate = mustParse(blogPostText)

func BlogPostPage(params *BlogPostParams) ([]byte, error) {
	return render(blogPostTemplate, params)
}

type ThoughtItem struct {
	Content string
	Date    string
}

type ThoughtsParams struct {
	Common

	Loading  bool
	Thoughts []*ThoughtItem
}

var thoughtsText = `
{{define "title"}}Thoughts{{end}}

{{define "content"}}
<h1>Thoughts</h1>

{{if .Loading}}<p class="text-muted">Loading...</p>{{end}}

{{range .Thoughts}}
<blockquote class="blockquote border-start ps-3 mb-4">
  <p>{{.Content}}</p>
  <footer class="blockquote-footer">{{.Date}}</footer>
</blockquote>
{{else}}
{{if not .Loading}}<p>Nothing here yet.</p>{{end}}
{{end}}
{{end}}
`

var thoughtsTemplate = mustParse(thoughtsText)

func ThoughtsPage(params *ThoughtsParams) ([]byte, error) {
	return render(thoughtsTemplate, params)
}

type GalleryItem struct {
	URL         string
	Title       string
	Description string
	Date        string
}

type GalleryParams struct {
	Common

	Loading bool
	Images  []*GalleryItem
}

var galleryText = `
{{define "title"}}Gallery{{end}}

{{define "content"}}
<h1>Gallery</h1>

{{if .Loading}}<p class="text-muted">Loading...</p>{{end}}

<div class="row">
  {{range .Images}}
  <figure class="col-md-4 figure">
    <img class="figure-img img-fluid rounded" src="{{.URL}}" alt="{{.Title}}">
    <figcaption class="figure-caption">{{if .Title}}<strong>{{.Title}}</strong> {{end}}{{.Description}}</figcaption>
  </figure>
  {{else}}
  {{if not .Loading}}<p>No images yet.</p>{{end}}
  {{end}}
</div>
{{end}}
`

var galleryTemplate = mustParse(galleryText)

func GalleryPage(params *GalleryParams) ([]byte, error) {
	return render(galleryTemplate, params)
}
