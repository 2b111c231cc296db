package api

import "embed"

// dashboardFS holds the embedded dashboard page.
//
//go:embed static/dashboard.html
var dashboardFS embed.FS
