// Package hook runs caller-supplied interception callbacks (pre/post
// tool-use hooks, the permission gate and the user-input gate) through a
// single adapter that contains their failures.
package hook

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Call invokes a caller-supplied callback, converting panics into errors
// so that misbehaving user code can never take the session down. The
// caller decides what a failure means (fail-closed for pre-hooks and the
// permission gate, no-op for post-hooks).
func Call[T any](logger zerolog.Logger, name string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panicked: %v", name, r)
			logger.Error().Str("handler", name).Any("panic", r).Msg("handler panicked")
		}
	}()
	result, err = fn()
	if err != nil {
		logger.Warn().Err(err).Str("handler", name).Msg("handler failed")
	}
	return result, err
}
