package uitemplates

type DashboardParams struct {
	Common

	Posts    []*DashboardPost
	Thoughts []*DashboardThought
	Images   []*DashboardImage
}

type DashboardPost struct {
	ID      string
	Title   string
	Excerpt string
	Content string
	Author  string
	Image   string
	Date    string
}

type DashboardThought struct {
	ID      string
	Content string
	Date    string
}

type DashboardImage struct {
	ID    string
	URL   string
	Title string
}

var dashboardText = `
{{define "title"}}Dashboard{{end}}

{{define "content"}}
<h1>Dashboard</h1>

<section class="mb-5">
<h2>Blog Posts</h2>

<details class="mb-3">
  <summary>New Post</summary>
  <form method="POST" action="/dashboard/posts/create">
    <input class="form-control mb-2" name="title" placeholder="Title" required>
    <input class="form-control mb-2" name="excerpt" placeholder="Excerpt">
    <input class="form-control mb-2" name="author" placeholder="Author" value="{{.ActiveUser.DisplayName}}">
    <input class="form-control mb-2" name="image" placeholder="Image URL">
    <textarea class="form-control mb-2" name="content" rows="8" placeholder="Content (HTML)" required></textarea>
    <button type="submit" class="btn btn-primary">Publish</button>
  </form>
</details>

{{range .Posts}}
<details class="mb-2">
  <summary>{{.Title}} <small class="text-muted">{{.Date}}</small></summary>
  <form method="POST" action="/dashboard/posts/update">
    <input type="hidden" name="id" value="{{.ID}}">
    <input class="form-control mb-2" name="title" value="{{.Title}}">
    <input class="form-control mb-2" name="excerpt" value="{{.Excerpt}}">
    <input class="form-control mb-2" name="author" value="{{.Author}}">
    <input class="form-control mb-2" name="image" value="{{.Image}}">
    <textarea class="form-control mb-2" name="content" rows="8">{{.Content}}</textarea>
    <button type="submit" class="btn btn-secondary">Save</button>
  </form>
  <form method="POST" action="/dashboard/posts/delete">
    <input type="hidden" name="id" value="{{.ID}}">
    <button type="submit" class="btn btn-danger">Delete</button>
  </form>
</details>
{{end}}
</section>

<section class="mb-5">
<h2>Thoughts</h2>

<form method="POST" action="/dashboard/thoughts/create" class="mb-3">
  <textarea class="form-control mb-2" name="content" rows="3" placeholder="What's on your mind?" required></textarea>
  <button type="submit" class="btn btn-primary">Share</button>
</form>

{{range .Thoughts}}
<div class="mb-2">
  <form method="POST" action="/dashboard/thoughts/update">
    <input type="hidden" name="id" value="{{.ID}}">
    <textarea class="form-control mb-1" name="content" rows="2">{{.Content}}</textarea>
    <small class="text-muted">{{.Date}}</small>
    <button type="submit" class="btn btn-sm btn-secondary">Save</button>
  </form>
  <form method="POST" action="/dashboard/thoughts/delete">
    <input type="hidden" name="id" value="{{.ID}}">
    <button type="submit" class="btn btn-sm btn-danger">Delete</button>
  </form>
</div>
{{end}}
</section>

<section class="mb-5">
<h2>Gallery</h2>

<form method="POST" action="/dashboard/gallery/upload" enctype="multipart/form-data" class="mb-3">
  <input class="form-control mb-2" type="file" name="file" accept="image/*" required>
  <input class="form-control mb-2" name="title" placeholder="Title">
  <input class="form-control mb-2" name="description" placeholder="Description">
  <button type="submit" class="btn btn-primary">Upload</button>
</form>

<div class="row">
{{range .Images}}
  <div class="col-md-3 mb-2">
    <img class="img-thumbnail" src="{{.URL}}" alt="{{.Title}}">
    <form method="POST" action="/dashboard/gallery/delete">
      <input type="hidden" name="id" value="{{.ID}}">
      <button type="submit" class="btn btn-sm btn-danger">Delete</button>
    </form>
  </div>
{{end}}
</div>
</section>
{{end}}
`

var dashboardTemplate = mustParse(dashboardText)

func DashboardPage(params *DashboardParams) ([]byte, error) {
	return render(dashboardTemplate, params)
}
