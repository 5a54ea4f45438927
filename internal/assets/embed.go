// Package assets serves the console's static files embedded via go:embed.
// Each file is fingerprinted with a content hash so pages can reference it
// with a long-lived cache and still pick up changes after an upgrade.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
)

//go:embed static
var staticFS embed.FS

// versions maps a file name under static/ to the first 8 hex digits of its
// SHA-256.
var versions = map[string]string{}

func init() {
	err := fs.WalkDir(staticFS, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(staticFS, p)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		versions[strings.TrimPrefix(p, "static/")] = hex.EncodeToString(sum[:4])
		return nil
	})
	if err != nil {
		slog.Error("failed to fingerprint static assets", "error", err)
	}
}

// URL returns the versioned URL for a static file, e.g.
// "/static/console.css?v=1a2b3c4d". Unknown names are returned unversioned.
func URL(name string) string {
	if v, ok := versions[name]; ok {
		return "/static/" + name + "?v=" + v
	}
	return "/static/" + name
}

// mimeFromExt returns the MIME type for a file extension, falling back to
// the standard MIME database and then "application/octet-stream".
func mimeFromExt(ext string) string {
	if ext == ".css" {
		return "text/css; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// FileServer returns an http.Handler that serves the embedded static files.
// Requests carrying the current version get immutable cache headers; all
// others get no-cache. The handler expects paths relative to the static
// root (strip /static/ before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if v, ok := versions[name]; ok && r.URL.Query().Get("v") == v {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}

		fileServer.ServeHTTP(w, r)
	})
}
