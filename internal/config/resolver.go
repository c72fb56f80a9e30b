package config

import (
	"strings"
	"sync"
)

// URLResolver resolves the runtime download URL on first use and caches it
// for the life of the process. An empty URL selects the store fallback.
type URLResolver struct {
	once    sync.Once
	resolve func() string
	url     string
}

// NewURLResolver returns a resolver backed by fn.
func NewURLResolver(fn func() string) *URLResolver {
	return &URLResolver{resolve: fn}
}

// SettingsURL resolves from the download_url setting.
func SettingsURL() *URLResolver {
	return NewURLResolver(func() string { return Get(KeyDownloadURL) })
}

// URL returns the cached download URL.
func (r *URLResolver) URL() string {
	r.once.Do(func() {
		if r.resolve != nil {
			r.url = strings.TrimSpace(r.resolve())
		}
	})
	return r.url
}
