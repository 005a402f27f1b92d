package webui

import "folio/webui/uitemplates"

var skillCategories = []*uitemplates.SkillCategory{
	{Name: "Frontend", Skills: []string{"HTML/CSS", "TypeScript", "React", "Templates"}},
	{Name: "Backend", Skills: []string{"Go", "REST APIs", "gRPC", "Python"}},
	{Name: "Storage", Skills: []string{"Firestore", "Cloud Storage", "PostgreSQL", "Badger"}},
	{Name: "Operations", Skills: []string{"Git", "Docker", "Kubernetes", "OpenTelemetry"}},
	{Name: "Soft Skills", Skills: []string{"Problem Solving", "Collaboration", "Writing"}},
}

var projects = []*uitemplates.Project{
	{
		Title:       "Folio",
		Description: "This site: a blog, short thoughts and a gallery, backed by a small REST API.",
		Tags:        []string{"Go", "Firestore", "Cloud Storage"},
	},
	{
		Title:       "Medication Tracker",
		Description: "Keeps track of prescriptions and mails a reminder before one runs out.",
		Tags:        []string{"Go", "SendGrid"},
	},
	{
		Title:       "Weather Dashboard",
		Description: "Forecasts and alerts for a handful of places I care about.",
		Tags:        []string{"TypeScript"},
	},
}
