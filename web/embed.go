// Package web provides the embedded public pages and assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed public
var publicFS embed.FS

// Public returns the embedded public directory with the "public/" prefix stripped.
func Public() fs.FS {
	sub, err := fs.Sub(publicFS, "public")
	if err != nil {
		panic(err)
	}
	return sub
}
