//go:build !tsnet

package gateway

import (
	"context"
	"errors"
)

// StartTailscale is unavailable without the tsnet build tag.
func (s *Server) StartTailscale(context.Context, string) error {
	return errors.New("this build has no tailnet support; rebuild with -tags tsnet")
}
