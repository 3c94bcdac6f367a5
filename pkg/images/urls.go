package images

import (
	"net/url"
	"strings"
)

// ResolveURL resolves a possibly-relative image reference against the
// article base URL. Protocol-relative refs get https.
func ResolveURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// IsGeneric detects placeholders and site furniture not worth localizing:
// logos, share buttons, tracking pixels, loading spinners
func IsGeneric(u string) bool {
	if u == "" {
		return true
	}
	lowered := strings.ToLower(u)
	for _, key := range []string{
		"logo", "default", "placeholder", "share", "social",
		"grey.gif", "blank.gif", "transparent.gif", "spinner", "loading",
		"waiting.gif", "prev.png", "next.png", "pixel",
	} {
		if strings.Contains(lowered, key) {
			return true
		}
	}
	return false
}
