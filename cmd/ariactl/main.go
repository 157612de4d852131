// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command ariactl is the operator CLI for the A.R.I.A. orchestrator.
//
// It talks to a running orchestrator over HTTP:
//
//	ariactl ask "¿Qué exige el DS 44 sobre matriz de riesgos?"
//	ariactl ask --stream --session 1b4e... "¿Y los plazos?"
//	ariactl legal "Obligaciones del empleador según Ley 16.744"
//	ariactl constitution push charter.md --metadata charter_meta.yaml
//	ariactl models
//	ariactl models refresh
//
// The server address comes from --server or ARIA_SERVER (default
// http://localhost:8080). Admin commands read the operator key from
// --admin-key or ADMIN_API_KEY.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	serverFlag   string
	adminKeyFlag string
	sessionFlag  string
	useCaseFlag  string
	streamFlag   bool
	metadataFlag string
	agentFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "ariactl",
	Short: "Operator CLI for the A.R.I.A. orchestrator",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"orchestrator base URL (default ARIA_SERVER or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&adminKeyFlag, "admin-key", "",
		"operator key for admin commands (default ADMIN_API_KEY)")

	askCmd.Flags().StringVar(&sessionFlag, "session", "", "session id to continue")
	askCmd.Flags().StringVar(&useCaseFlag, "use-case", "", "model registry use case")
	askCmd.Flags().BoolVar(&streamFlag, "stream", false, "stream the answer as it generates")
	rootCmd.AddCommand(askCmd)

	rootCmd.AddCommand(legalCmd)

	constitutionPushCmd.Flags().StringVar(&metadataFlag, "metadata", "",
		"YAML file with principios / enfoque_legal metadata")
	constitutionPushCmd.Flags().StringVar(&agentFlag, "agent", "", "agent name (default A.R.I.A.)")
	constitutionGetCmd.Flags().StringVar(&agentFlag, "agent", "", "agent name (default A.R.I.A.)")
	constitutionCmd.AddCommand(constitutionPushCmd, constitutionGetCmd)
	rootCmd.AddCommand(constitutionCmd)

	modelsCmd.AddCommand(modelsRefreshCmd)
	rootCmd.AddCommand(modelsCmd)
}
