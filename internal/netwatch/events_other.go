//go:build !linux

package netwatch

import "context"

func platformEvents(_ context.Context, _ func()) error {
	return ErrUnsupported
}
