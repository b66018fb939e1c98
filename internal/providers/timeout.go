package providers

import (
	"context"
	"errors"
	"net"
)

// isTimeout reports whether err came from an http.Client.Timeout (or
// context deadline) expiring mid-request, as opposed to some other
// transport failure. http.Client wraps both in a *url.Error satisfying
// net.Error with Timeout() true.
func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
