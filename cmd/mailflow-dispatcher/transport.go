package main

import (
	"fmt"
	"log/slog"

	"github.com/dukex/mailflow/pkg/config"
	"github.com/dukex/mailflow/pkg/transport"
	"github.com/dukex/mailflow/pkg/transport/httpbatch"
	logtransport "github.com/dukex/mailflow/pkg/transport/log"
)

// NewTransport builds the transport named by the config.
//
//nolint:ireturn // the dispatcher only needs the interface
func NewTransport(cfg config.Dispatcher, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case "log":
		return logtransport.New(logger), nil
	case "http":
		t, err := httpbatch.New(cfg.TransportURL, cfg.TransportToken, logger, httpbatch.WithTimeout(cfg.TransportTimeout))
		if err != nil {
			return nil, err
		}

		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
