package webassets

import "embed"

// FS holds the page templates and the browser scripts.
//
//go:embed auth-client.js form-guard.js templates/*.tmpl
var FS embed.FS
