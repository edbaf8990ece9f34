package realtime

import (
	"net/http"
	"strings"
)

// Authenticator extracts the bidder identity established by the upstream
// auth layer. ok is false when the request carries no identity.
type Authenticator interface {
	Bidder(r *http.Request) (id string, ok bool)
}

// HeaderAuthenticator trusts a header set by a fronting proxy.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) Bidder(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(a.Header))
	return id, id != ""
}

// NewAuthenticator returns a HeaderAuthenticator for header, or nil when
// header is empty and join messages are trusted as-is.
func NewAuthenticator(header string) Authenticator {
	if header == "" {
		return nil
	}
	return HeaderAuthenticator{Header: header}
}
