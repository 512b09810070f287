package jobs

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	hostRe = regexp.MustCompile(`^(?:www\.|m\.|music\.)?(?:youtube\.com|youtube-nocookie\.com)$`)
	idRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// NormalizeLink trims the message text and reports whether it is a link to a
// single supported video. The returned string is what the acquirer receives.
func NormalizeLink(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Hostname())

	var id string
	switch {
	case host == "youtu.be":
		id = strings.Trim(u.Path, "/")
	case hostRe.MatchString(host):
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"),
			strings.HasPrefix(u.Path, "/live/"),
			strings.HasPrefix(u.Path, "/embed/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) == 2 {
				id = parts[1]
			}
		}
	default:
		return "", false
	}
	if !idRe.MatchString(id) {
		return "", false
	}
	return s, true
}
