//go:build tsnet

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"
)

// StartTailscale serves the same mux on a tailnet listener. Blocks
// until ctx ends. Requires a tsnet-enabled build.
func (s *Server) StartTailscale(ctx context.Context, hostname string) error {
	if hostname == "" {
		hostname = "goaide"
	}
	ts := &tsnet.Server{Hostname: hostname}
	defer ts.Close()

	ln, err := ts.Listen("tcp", ":80")
	if err != nil {
		return fmt.Errorf("tsnet listen: %w", err)
	}
	slog.Info("gateway serving on tailnet", "hostname", hostname)

	srv := &http.Server{Handler: s.BuildMux()}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.Serve(ln); err != http.ErrServerClosed {
		return fmt.Errorf("tsnet serve: %w", err)
	}
	return nil
}
