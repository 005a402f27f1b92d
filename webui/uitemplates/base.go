package uitemplates

import (
	"bytes"
	"fmt"
	"html/template"
)

var baseText = `
<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{block "title" .}}Title{{end}} - Folio</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0-alpha1/dist/css/bootstrap.min.css" rel="stylesheet" integrity="sha384-GLhlTQ8iRABdZLl6O3oVMWSktQOp6b7In1Zl3/Jr59b6EGGoI1aFkw7cmDA6j6gD" crossorigin="anonymous">
  </head>
  <body>
    <div class="container">
      <nav class="navbar navbar-expand bg-body-tertiary">
        <div class="container-fluid">
          <a class="navbar-brand" href="/">Folio</a>
          <ul class="navbar-nav">
            <li class="nav-item"><a class="nav-link" href="/about">About</a></li>
            <li class="nav-item"><a class="nav-link" href="/skills">Skills</a></li>
            <li class="nav-item"><a class="nav-link" href="/projects">Projects</a></li>
            <li class="nav-item"><a class="nav-link" href="/blog">Blog</a></li>
            <li class="nav-item"><a class="nav-link" href="/thoughts">Thoughts</a></li>
            <li class="nav-item"><a class="nav-link" href="/gallery">Gallery</a></li>
            {{if .ActiveUser.LoggedIn}}
            <li class="nav-item"><a class="nav-link" href="/dashboard">Dashboard</a></li>
            <li class="nav-item"><a class="nav-link" href="/log-out">Log Out ({{.ActiveUser.DisplayName}})</a></li>
            {{else}}
            <li class="nav-item"><a class="nav-link" href="/log-in">Log In</a></li>
            {{end}}
          </ul>
        </div>
      </nav>

      <main class="mt-3">
        {{with .UserError}}<div class="alert alert-danger" role="alert">{{.}}</div>{{end}}
        {{block "content" .}}{{end}}
      </main>

      <footer class="pt-3 my-5 border-top">
        <address>
          <a href="/about">About</a>
        </address>
      </footer>
    </div>
  </body>
</html>
`

func mustParse(pageText string) *template.Template {
	return template.Must(template.Must(template.New("base").Parse(baseText)).Parse(pageText))
}

func render(t *template.Template, params interface{}) ([]byte, error) {
	b := bytes.Buffer{}
	if err := t.Execute(&b, params); err != nil {
		return nil, fmt.Errorf("while executing template: %w", err)
	}
	return b.Bytes(), nil
}
