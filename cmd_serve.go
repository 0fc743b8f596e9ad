package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"gridfill/proxy"
	"gridfill/research"
)

// runServe exposes the research API through a local HTTP proxy so other
// frontends can submit batches and follow events without holding an API key.
func runServe(addr string) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "gridfill",
	})

	client, err := research.NewClientFromEnv()
	if err != nil {
		return err
	}

	server := proxy.NewServer(client, proxy.WithLogger(logger))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("proxy listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("proxy server: %w", err)
	}
	return nil
}
