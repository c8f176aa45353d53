package transport

import (
	"fmt"
	"net/http"
)

// ErrStatus reports a non-success HTTP status.
type ErrStatus struct {
	URL    string
	Status int
}

func (e *ErrStatus) Error() string {
	return fmt.Sprintf("%s: http status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

func (e *ErrStatus) TransportStatus() int {
	return e.Status
}

// ErrRedirectLoop reports a redirect chain that revisits a URL or runs too long.
type ErrRedirectLoop struct {
	URL  string
	Hops int
}

func (e *ErrRedirectLoop) Error() string {
	return fmt.Sprintf("%s: redirect loop after %d hops", e.URL, e.Hops)
}

// TransportStatus is the status the loop was detected on.
func (e *ErrRedirectLoop) TransportStatus() int {
	return http.StatusFound
}

// ErrUnknownSize reports a response with no usable Content-Length.
type ErrUnknownSize struct {
	URL string
}

func (e *ErrUnknownSize) Error() string {
	return fmt.Sprintf("%s: response size is unknown", e.URL)
}
