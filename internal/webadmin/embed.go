// ABOUTME: Embeds HTML templates and markdown notices into the binary using go:embed
// ABOUTME: Provides templateFS and docsFS for loading them at runtime

package webadmin

import "embed"

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

//go:embed docs/*.md
var docsFS embed.FS
