// Package media turns stored object paths into URLs browsers can load.
package media

import (
	"context"
	"strings"
)

// Resolver maps a stored image path to a URL.
type Resolver interface {
	URL(ctx context.Context, path string) (string, error)
}

// CleanPath strips surrounding whitespace and leading slashes from an object path.
func CleanPath(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}

// IsAbsolute reports whether path is already a full http(s) URL.
func IsAbsolute(path string) bool {
	p := strings.ToLower(strings.TrimSpace(path))
	return strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "http://")
}

// PublicResolver joins a public base URL, such as a CDN or bucket domain, with
// the object path.
type PublicResolver struct {
	BaseURL string
}

// URL implements Resolver. With an empty base URL the path is returned rooted
// at "/" so the front-end serves it from its own origin.
func (p PublicResolver) URL(_ context.Context, path string) (string, error) {
	if IsAbsolute(path) {
		return strings.TrimSpace(path), nil
	}
	clean := CleanPath(path)
	base := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	return base + "/" + clean, nil
}
