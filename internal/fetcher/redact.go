package fetcher

import (
	"net/url"
	"strings"
)

var secretParams = []string{"username", "password", "token", "key", "apikey", "api_key"}

// Redact masks credentials in rawURL: userinfo passwords and the query
// parameters panels use for secrets. Unparseable input is masked whole.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable url]"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	q := u.Query()
	for k := range q {
		for _, s := range secretParams {
			if strings.EqualFold(k, s) {
				q.Set(k, "***")
			}
		}
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return strings.ReplaceAll(u.String(), "%2A%2A%2A", "***")
}

// RedactSecrets replaces every literal occurrence of the given secrets in s.
// Stream URLs embed Xtream credentials as path segments.
func RedactSecrets(s string, secrets ...string) string {
	for _, sec := range secrets {
		if sec != "" {
			s = strings.ReplaceAll(s, sec, "***")
		}
	}
	return s
}
