package uitemplates

type LogInParams struct {
	Common

	RedirectTarget string
}

var logInText = `
{{define "title"}}Log In{{end}}

{{define "content"}}
<h1>Log In</h1>
<form method="POST" action="/log-in">
  <input type="hidden" name="redirect-target" value="{{.RedirectTarget}}">
  <div class="mb-3">
    <label class="form-label" for="email">Email</label>
    <input class="form-control" type="email" name="email" id="email" required>
  </div>
  <div class="mb-3">
    <label class="form-label" for="password">Password</label>
    <input class="form-control" type="password" name="password" id="password" required>
  </div>
  <button type="submit" class="btn btn-primary">Log In</button>
</form>
{{end}}
`

var logInTemplate = mustParse(logInText)

func LogInPage(params *LogInParams) ([]byte, error) {
	return render(logInTemplate, params)
}
