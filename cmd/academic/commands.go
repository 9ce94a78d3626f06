// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL  string
	jsonOutput bool
	configPath string

	// ingest
	ingestType  string
	ingestVideo string
	ingestPDF   string
	ingestPath  string
	forceReset  bool

	// sweep
	sweepForce bool
	sweepAsync bool

	// ask
	askThread string
	askAsset  string
	askStream bool

	rootCmd = &cobra.Command{
		Use:           "academic",
		Short:         "Multimodal study assistant over lecture videos and PDFs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Ingestion ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [asset-id]",
		Short: "Prepare and index one video or PDF",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIngest, // Defined in cmd_ingest.go
	}
	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run the batch pass and archive outlines for every pending asset",
		Args:  cobra.NoArgs,
		RunE:  runSweep, // Defined in cmd_ingest.go
	}

	// --- Reasoning ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the ingested material",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk, // Defined in cmd_ask.go
	}
	resumeCmd = &cobra.Command{
		Use:   "resume [thread-id]",
		Short: "Continue an interrupted reasoning run",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume, // Defined in cmd_ask.go
	}
	threadCmd = &cobra.Command{
		Use:   "thread [thread-id]",
		Short: "Show the saved state and history of a reasoning run",
		Args:  cobra.ExactArgs(1),
		RunE:  runThread, // Defined in cmd_ask.go
	}

	// --- Assets ---
	assetsCmd = &cobra.Command{
		Use:   "assets",
		Short: "List archived outlines and assets waiting for one",
		Args:  cobra.NoArgs,
		RunE:  runAssets, // Defined in cmd_assets.go
	}
	outlineCmd = &cobra.Command{
		Use:   "outline [asset-id]",
		Short: "Print the archived outline of an asset",
		Args:  cobra.ExactArgs(1),
		RunE:  runOutline, // Defined in cmd_assets.go
	}

	// --- System ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the resource gate state",
		Args:  cobra.NoArgs,
		RunE:  runStatus, // Defined in cmd_system.go
	}
	releaseCmd = &cobra.Command{
		Use:   "release",
		Short: "Force the resource gate back to idle",
		Args:  cobra.NoArgs,
		RunE:  runRelease, // Defined in cmd_system.go
	}
	tripCmd = &cobra.Command{
		Use:   "trip [reason]",
		Short: "Put the resource gate into the error state",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrip, // Defined in cmd_system.go
	}
)

func init() {
	defaultServer := os.Getenv("ACADEMIC_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:12210"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "orchestrator base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration (default $ACADEMIC_CONFIG)")

	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "video", "asset type: video, pdf or all")
	ingestCmd.Flags().StringVar(&ingestVideo, "video-id", "", "video asset id")
	ingestCmd.Flags().StringVar(&ingestPDF, "pdf-id", "", "pdf asset id")
	ingestCmd.Flags().StringVar(&ingestPath, "video-path", "", "video file passed to the slicer (defaults to the video id)")
	ingestCmd.Flags().BoolVar(&forceReset, "force-reset", false, "drop existing index entries before indexing")

	sweepCmd.Flags().BoolVar(&sweepForce, "force", false, "regenerate outlines that already exist")
	sweepCmd.Flags().BoolVar(&sweepAsync, "async", false, "return immediately and sweep in the background")

	askCmd.Flags().StringVar(&askThread, "thread", "", "thread id (generated when empty)")
	askCmd.Flags().StringVar(&askAsset, "asset", "", "restrict retrieval to one asset")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print workflow steps as they complete")

	rootCmd.AddCommand(serveCmd, ingestCmd, sweepCmd, askCmd, resumeCmd, threadCmd,
		assetsCmd, outlineCmd, statusCmd, releaseCmd, tripCmd)
}
