package uitemplates

// ActiveUserParams holds information about the active user.
type ActiveUserParams struct {
	// LoggedIn is true if there is a session.
	LoggedIn bool

	DisplayName string
	Email       string
}

// Common is embedded by every page's params.
type Common struct {
	ActiveUser ActiveUserParams

	// UserError is shown above the page content, if set.
	UserError string
}
