package git

import (
	"net/url"
	"regexp"
	"strings"
)

// userinfoPattern matches the credential part of an http(s) URL in free text.
var userinfoPattern = regexp.MustCompile(`(https?://)[^/@\s'"]+@`)

// AuthenticatedURL returns remote with token spliced in as URL userinfo. The
// token is only injected into https URLs hosted on github.com; for any other
// remote the URL is returned unchanged and ok is false.
func AuthenticatedURL(remote, token string) (authURL string, ok bool) {
	if token == "" {
		return remote, false
	}

	u, err := url.Parse(remote)
	if err != nil || u.Scheme != "https" || !isGitHubHost(u.Hostname()) {
		return remote, false
	}

	u.User = url.User(token)
	return u.String(), true
}

// RedactURL strips any userinfo from remote so it is safe to display.
func RedactURL(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return userinfoPattern.ReplaceAllString(remote, "$1")
	}

	u.User = nil
	return u.String()
}

// Redact masks every secret and every URL credential in text.
func Redact(text string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			text = strings.ReplaceAll(text, s, "***")
		}
	}
	return userinfoPattern.ReplaceAllString(text, "${1}***@")
}

func isGitHubHost(host string) bool {
	host = strings.ToLower(host)
	return host == "github.com" || strings.HasSuffix(host, ".github.com")
}
