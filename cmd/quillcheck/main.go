// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command quillcheck runs the prose-checking language server over
// stdio. Editors launch it as an LSP server; it extracts comments and
// string prose from source files, sends them to a
// LanguageTool-compatible backend, and publishes the findings as
// diagnostics.
//
// Usage:
//
//	quillcheck serve --backend-url http://localhost:8081
//	quillcheck serve --config ~/.config/quillcheck/config.yaml
//	quillcheck languages
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quillcheck/quillcheck/pkg/logging"
	"github.com/quillcheck/quillcheck/services/grammar"
	"github.com/quillcheck/quillcheck/services/lsp"
	"github.com/quillcheck/quillcheck/services/server"
)

var (
	configPath string
	backendURL string
	logLevel   string
	logDir     string

	rootCmd = &cobra.Command{
		Use:   "quillcheck",
		Short: "Prose checking for source code, as a language server",
		Long: `quillcheck is an LSP server that extracts natural-language prose
from source code (doc comments, markdown, configured captures), checks
it against a LanguageTool-compatible backend, and publishes the
findings as editor diagnostics.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the language server protocol over stdio",
		RunE:  runServe,
	}

	languagesCmd = &cobra.Command{
		Use:   "languages",
		Short: "List the built-in language grammars",
		Run: func(cmd *cobra.Command, args []string) {
			names := grammar.SupportedLanguages()
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", server.Name, server.Version)
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML settings file")
	serveCmd.Flags().StringVar(&backendURL, "backend-url", "", "LanguageTool-compatible backend URL (overrides config)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (stderr only when empty)")
	rootCmd.AddCommand(serveCmd, languagesCmd, versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		LogDir:  logDir,
		Service: server.Name,
	})
	defer logger.Close()

	settings, err := server.LoadSettings(configPath)
	if err != nil {
		// A broken config file should be visible but not fatal: the
		// editor session is more useful degraded than dead.
		logger.Error("settings load failed, using defaults", "error", err)
	}
	if backendURL != "" {
		settings.Backend.URL = backendURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stdout belongs to the protocol; everything human-readable goes
	// to the logger.
	conn := lsp.NewConn(os.Stdin, os.Stdout)
	srv := server.New(conn, settings, logger)

	logger.Info("starting", "version", server.Version, "pid", os.Getpid())
	if err := srv.Run(ctx); err != nil {
		logger.Error("server terminated", "error", err)
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
