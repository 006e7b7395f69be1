package classifier

import "context"

// Client sends image bytes to a remote classification endpoint and returns
// its textual answer untouched.
type Client interface {
	Invoke(ctx context.Context, image []byte) (string, error)
}
