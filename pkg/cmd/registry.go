// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/mailflow/pkg/registry"
)

func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	err := reg.RegisterDefaultNodes()
	if err != nil {
		panic(err)
	}

	return reg
}
