// Package privacy strips credentials from URLs before they reach logs.
package privacy

import (
	"net/url"
	"regexp"
)

// URLs with a userinfo part, as used for broker addresses
var credentialURLPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s/@]+@\S+`)

// RedactURL removes the password from a URL. Unparseable input is returned
// unchanged when it has no userinfo, otherwise it is replaced entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if credentialURLPattern.MatchString(raw) {
			return "[redacted-url]"
		}
		return raw
	}
	if u.User == nil {
		return raw
	}
	return u.Redacted()
}

// ScrubMessage redacts every URL with credentials found in message.
func ScrubMessage(message string) string {
	return credentialURLPattern.ReplaceAllStringFunc(message, RedactURL)
}

// SanitizedError reports a scrubbed message while keeping the original
// error available to errors.Is and errors.As.
type SanitizedError struct {
	original  error
	sanitized string
}

func (e *SanitizedError) Error() string { return e.sanitized }

func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError returns nil for nil, otherwise an error safe to log.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{original: err, sanitized: ScrubMessage(err.Error())}
}
