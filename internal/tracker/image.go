package tracker

import (
	"net/url"
	"strings"

	"redtrack/internal/model"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// HasImageURL reports whether the item's URL looks like downloadable media.
// Placeholder values the upstream API uses for non-link posts are excluded.
func HasImageURL(item model.Item) bool {
	raw := item.URL
	switch raw {
	case "", "self", "default", "nsfw", "spoiler":
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Host)
	if host == "i.redd.it" || strings.HasPrefix(host, "i.imgur") {
		return true
	}

	lower := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
