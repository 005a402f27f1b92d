package uitemplates

type LogOutParams struct {
	Common
}

var logOutText = `
{{define "title"}}Log Out{{end}}

{{define "content"}}
<h1>Log Out</h1>

<form method="POST" action="/log-out">
  <button type="submit" class="btn btn-primary">Log Out</button>
</form>
{{end}}
`

var logOutTemplate = mustParse(logOutText)

func LogOutPage(params *LogOutParams) ([]byte, error) {
	return render(logOutTemplate, params)
}
