package web

import (
	"embed"
	"io/fs"
)

//go:embed all:static
var staticFS embed.FS

// StaticFS returns the embedded static/ directory as an fs.FS with the
// "static" prefix stripped, so files are served from the root
// (e.g. "index.html").
func StaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
