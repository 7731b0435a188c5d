package profile

import (
	"net/url"
	"strings"
)

// allowedAvatarHosts lists the remote image hosts avatars may come from.
// A leading "*." matches any subdomain.
var allowedAvatarHosts = []string{
	"lh3.googleusercontent.com",
	"*.googleusercontent.com",
	"platform-lookaside.fbsbx.com",
	"graph.facebook.com",
}

// SanitizeAvatarURL returns rawURL when it is an https URL on an allowed
// host, and "" otherwise.
func SanitizeAvatarURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme != "https" || parsed.User != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	for _, pattern := range allowedAvatarHosts {
		if strings.HasPrefix(pattern, "*.") {
			if strings.HasSuffix(host, pattern[1:]) {
				return trimmed
			}
			continue
		}
		if host == pattern {
			return trimmed
		}
	}
	return ""
}
