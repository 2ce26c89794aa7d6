package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/config"
	"github.com/fyrsmithlabs/govern/internal/logging"
	"github.com/fyrsmithlabs/govern/internal/mcp"
)

// mcpLogFile is used when MCP mode has nowhere else to log.
const mcpLogFile = "governd-mcp.log"

// runMCP serves the agent tools on stdio. Stdout carries the protocol,
// so logs go to a file or OTEL only.
func runMCP(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	lc, err := mcpLoggingConfig(cfg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, lc)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger.Underlying()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:        "governd",
		Version:     version,
		Logger:      logger.Named("mcp"),
		SubmitRate:  cfg.Server.SubmitRate,
		SubmitBurst: cfg.Server.SubmitBurst,
		Meter:       a.tel.Meter(mcp.InstrumentationName),
	}, a.engine)
	if err != nil {
		return err
	}

	logger.Info("serving MCP tools", zap.String("version", version))
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func mcpLoggingConfig(cfg *config.Config) (*logging.Config, error) {
	lc := loggingConfig(cfg)
	lc.Output.Stdout = false
	if lc.Output.File.Path == "" && !lc.Output.OTEL {
		if err := config.EnsureConfigDir(); err != nil {
			return nil, fmt.Errorf("preparing log directory: %w", err)
		}
		dir, err := config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		lc.Output.File.Path = filepath.Join(dir, mcpLogFile)
	}
	return lc, nil
}
