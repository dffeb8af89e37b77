package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// tokenParam is the query parameter browsers use to authenticate streams.
const tokenParam = "token"

const redacted = "[REDACTED]"

// redactingLogFormatter keeps credentials passed in the query string out of
// the request log.
type redactingLogFormatter struct {
	base middleware.LogFormatter
}

func (f *redactingLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return f.base.NewLogEntry(redactRequestForLogging(r))
}

// redactRequestForLogging returns r itself when nothing needs hiding,
// otherwise a clone whose URL and RequestURI carry redacted values.
func redactRequestForLogging(r *http.Request) *http.Request {
	if r == nil || r.URL == nil {
		return r
	}
	raw, ok := redactQuery(r.URL.RawQuery)
	if !ok {
		return r
	}
	clone := r.Clone(r.Context())
	clone.URL.RawQuery = raw
	clone.RequestURI = clone.URL.RequestURI()
	return clone
}

// redactQuery replaces the values of sensitive keys and reports whether any
// were found. Unparseable queries are hidden whole.
func redactQuery(raw string) (string, bool) {
	if raw == "" {
		return raw, false
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return redacted, true
	}
	found := false
	for key, vs := range values {
		if !isSensitiveQueryKey(key) {
			continue
		}
		for i := range vs {
			vs[i] = redacted
		}
		found = true
	}
	if !found {
		return raw, false
	}
	return values.Encode(), true
}

func isSensitiveQueryKey(key string) bool {
	switch strings.ToLower(key) {
	case tokenParam, "access_token", "api_key", "apikey":
		return true
	}
	return false
}
