// Package common defines data structures and functions that are used by multiple
// application commands, i.e., run and summarize.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Timestamp   string // Timestamp is the time the application started.
	OutputDir   string // OutputDir is the directory where the application will write run logs and summaries.
	LogFilePath string // LogFilePath is the path to the log file, empty when not logging to a file.
	Version     string // Version is the version of the application.
	Debug       bool   // Debug is true when debug logging is enabled.
}

type Flag struct {
	Name string
	Help string
}
type FlagGroup struct {
	GroupName string
	Flags     []Flag
}

// GetAppContext returns the application context stored on the root command.
func GetAppContext(cmd *cobra.Command) AppContext {
	ctx := cmd.Root().Context()
	if ctx == nil {
		return AppContext{}
	}
	appContext, _ := ctx.Value(AppContext{}).(AppContext)
	return appContext
}

// FlagValidationError is used to report an error with a flag
func FlagValidationError(cmd *cobra.Command, msg string) error {
	err := errors.New(msg)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "See '%s --help' for usage details.\n", cmd.CommandPath())
	cmd.SilenceUsage = true
	return err
}

// UsageFunc prints the command's flags grouped as returned by getFlagGroups,
// followed by the global flags.
func UsageFunc(useLine string, getFlagGroups func() []FlagGroup) func(*cobra.Command) error {
	return func(cmd *cobra.Command) error {
		cmd.Printf("Usage: %s %s\n\n", cmd.CommandPath(), useLine)
		if cmd.Example != "" {
			cmd.Printf("Examples:\n%s\n\n", cmd.Example)
		}
		cmd.Println("Flags:")
		for _, group := range getFlagGroups() {
			cmd.Printf("  %s:\n", group.GroupName)
			for _, flag := range group.Flags {
				flagDefault := ""
				if f := cmd.Flags().Lookup(flag.Name); f != nil && f.DefValue != "" && f.DefValue != "[]" {
					flagDefault = fmt.Sprintf(" (default: %s)", f.DefValue)
				}
				cmd.Printf("    --%-22s %s%s\n", flag.Name, flag.Help, flagDefault)
			}
		}
		if cmd.HasParent() {
			cmd.Println("\nGlobal Flags:")
			cmd.Root().PersistentFlags().VisitAll(func(pf *pflag.Flag) {
				flagDefault := ""
				if pf.DefValue != "" {
					flagDefault = fmt.Sprintf(" (default: %s)", pf.DefValue)
				}
				cmd.Printf("  --%-24s %s%s\n", pf.Name, pf.Usage, flagDefault)
			})
		}
		return nil
	}
}

// CreateOutputDir creates the output directory if it does not exist
func CreateOutputDir(outputDir string) error {
	err := os.MkdirAll(outputDir, 0755) // #nosec G301
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// SignalContext returns a context that is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChannel := make(chan os.Signal, 1)
	signal.Notify(sigChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChannel:
			slog.Info("received signal", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigChannel)
		cancel()
	}
}
