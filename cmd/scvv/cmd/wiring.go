package cmd

import (
	"fmt"
	"log/slog"

	"github.com/jmylchreest/scvv/internal/config"
	"github.com/jmylchreest/scvv/internal/storage"
	"github.com/jmylchreest/scvv/internal/transport"
	"github.com/jmylchreest/scvv/pkg/httpclient"
)

// assetsClientName is the registry name of the asset transport client.
const assetsClientName = "assets"

// newFetcher builds the asset transport: HTTP(S) through the resilient
// client, and local:// recordings from the storage sandbox.
func newFetcher(cfg *config.Config, logger *slog.Logger) (transport.Fetcher, *httpclient.Registry, error) {
	client := transport.NewClient(cfg.HTTP, logger)
	registry := httpclient.NewRegistry()
	registry.Register(assetsClientName, client)

	sandbox, err := storage.NewSandbox(cfg.Storage.BaseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing recordings storage: %w", err)
	}

	return &transport.Mux{
		Remote: transport.NewHTTPFetcher(client, cfg.HTTP.RequestTimeout),
		Local:  transport.NewLocalFetcher(sandbox),
	}, registry, nil
}
