package uitemplates

type HomeParams struct {
	Common

	LatestPosts []*PostSummary
}

var homeText = `
{{define "title"}}Home{{end}}

{{define "content"}}
<h1>Hi, welcome to my corner of the web.</h1>
<p class="lead">I build things for the web and write about what I learn along the way.</p>

<p>
  <a class="btn btn-primary" href="/projects">View Projects</a>
  <a class="btn btn-outline-secondary" href="/blog">Read the Blog</a>
</p>

{{if .LatestPosts}}
<h2>Latest Posts</h2>
<ul>
  {{range .LatestPosts}}
  <li><a href="{{.Link}}">{{.Title}}</a> <small class="text-muted">{{.Date}}</small></li>
  {{end}}
</ul>
{{end}}
{{end}}
`

var homeTemplate = mustParse(homeText)

func HomePage(params *HomeParams) ([]byte, error) {
	return render(homeTemplate, params)
}

type AboutParams struct {
	Common
}

var aboutText = `
{{define "title"}}About{{end}}

{{define "content"}}
<h1>About Me</h1>
<p class="lead">
  I'm a developer who likes small, sturdy systems: services that do one thing,
  tools that stay out of the way, and pages that load fast.
</p>
<p>
  This site is where I keep my writing, short thoughts that don't deserve a
  whole post, and photos I like.
</p>
{{end}}
`

var aboutTemplate = mustParse(aboutText)

func AboutPage(params *AboutParams) ([]byte, error) {
	return render(aboutTemplate, params)
}

type SkillsParams struct {
	Common

	Categories []*SkillCategory
}

type SkillCategory struct {
	Name   string
	Skills []string
}

var skillsText = `
{{define "title"}}Skills{{end}}

{{define "content"}}
<h1>Skills &amp; Expertise</h1>
<p class="lead">Technologies and tools I work with.</p>

<div class="row">
  {{range .Categories}}
  <div class="col-md-4 mb-3">
    <div class="card"><div class="card-body">
      <h3 class="card-title">{{.Name}}</h3>
      {{range .Skills}}<span class="badge text-bg-secondary me-1">{{.}}</span>{{end}}
    </div></div>
  </div>
  {{end}}
</div>
{{end}}
`

var skillsTemplate = mustParse(skillsText)

func SkillsPage(params *SkillsParams) ([]byte, error) {
	return render(skillsTemplate, params)
}

type ProjectsParams struct {
	Common

	Projects []*Project
}

type Project struct {
	Title       string
	Description string
	Tags        []string
	Link        string
}

var projectsText = `
{{define "title"}}Projects{{end}}

{{define "content"}}
<h1>Projects</h1>

<div class="row">
  {{range .Projects}}
  <div class="col-md-6 mb-3">
    <div class="card"><div class="card-body">
      <h3 class="card-title">{{.Title}}</h3>
      <p>{{.Description}}</p>
      {{range .Tags}}<span class="badge text-bg-light me-1">{{.}}</span>{{end}}
      {{with .Link}}<p class="mt-2"><a href="{{.}}">Source</a></p>{{end}}
    </div></div>
  </div>
  {{end}}
</div>
{{end}}
`

var projectsTemplate = mustParse(projectsText)

func ProjectsPage(params *ProjectsParams) ([]byte, error) {
	return render(projectsTemplate, params)
}

type NotFoundParams struct {
	Common

	Path string
}

var notFoundText = `
{{define "title"}}Not Found{{end}}

{{define "content"}}
<h1>404</h1>
<p>Nothing lives at <code>{{.Path}}</code>.</p>
<p><a href="/">Return home</a></p>
{{end}}
`

var notFoundTemplate = mustParse(notFoundText)

func NotFoundPage(params *NotFoundParams) ([]byte, error) {
	return render(notFoundTemplate, params)
}
