package fetch

import (
	"context"
	"errors"
	"fmt"
)

// ErrPermanent marks failures retrying cannot fix (4xx other than 429,
// malformed URLs). The retrier terminates on it.
var ErrPermanent = errors.New("permanent fetch error")

// permanent wraps err so that errors.Is(err, ErrPermanent) holds while the
// original cause stays reachable through Unwrap
func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTemporary reports whether the failure is transient: timeouts, resets
// and 5xx responses count, permanent 4xx and canceled contexts do not
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
