// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type constitutionMetadata struct {
	Principles []string `json:"principios,omitempty" yaml:"principios"`
	LegalFocus []string `json:"enfoque_legal,omitempty" yaml:"enfoque_legal"`
}

type constitutionPushPayload struct {
	AgentName string                `json:"agentName,omitempty"`
	Text      string                `json:"constitution"`
	Metadata  *constitutionMetadata `json:"metadata,omitempty"`
}

var constitutionCmd = &cobra.Command{
	Use:   "constitution",
	Short: "Manage agent behavioral charters",
}

var constitutionPushCmd = &cobra.Command{
	Use:   "push [charter file]",
	Short: "Replace the agent's constitution from a text file",
	Args:  cobra.ExactArgs(1),
	Run:   runConstitutionPush,
}

var constitutionGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the agent's current constitution",
	Args:  cobra.NoArgs,
	Run:   runConstitutionGet,
}

func runConstitutionPush(cmd *cobra.Command, args []string) {
	key := adminKey()
	if key == "" {
		log.Fatal("Error: admin key required (--admin-key or ADMIN_API_KEY)")
	}

	text, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading charter file: %v", err)
	}

	payload := constitutionPushPayload{
		AgentName: agentFlag,
		Text:      string(text),
	}

	if metadataFlag != "" {
		raw, err := os.ReadFile(metadataFlag)
		if err != nil {
			log.Fatalf("Error reading metadata file: %v", err)
		}
		var meta constitutionMetadata
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			log.Fatalf("Error parsing metadata YAML: %v", err)
		}
		payload.Metadata = &meta
	}

	var resp struct {
		Status string `json:"status"`
		Agent  string `json:"agent"`
	}
	headers := map[string]string{"x-admin-key": key}
	if err := postJSON("/v1/admin/constitution", payload, &resp, headers); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Constitution %s for agent %q\n", resp.Status, resp.Agent)
}

func runConstitutionGet(cmd *cobra.Command, args []string) {
	key := adminKey()
	if key == "" {
		log.Fatal("Error: admin key required (--admin-key or ADMIN_API_KEY)")
	}

	agent := agentFlag
	if agent == "" {
		agent = "A.R.I.A."
	}

	var resp struct {
		AgentName string                `json:"nombre_agente"`
		Text      string                `json:"constitucion"`
		Metadata  *constitutionMetadata `json:"metadata"`
		UpdatedAt string                `json:"fecha_actualizacion"`
	}
	headers := map[string]string{"x-admin-key": key}
	if err := getJSON("/v1/admin/constitution/"+agent, &resp, headers); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Agent: %s\nUpdated: %s\n\n%s\n", resp.AgentName, resp.UpdatedAt, resp.Text)
	if resp.Metadata != nil {
		if len(resp.Metadata.Principles) > 0 {
			fmt.Println("\nPrincipios:")
			for _, p := range resp.Metadata.Principles {
				fmt.Printf("  - %s\n", p)
			}
		}
		if len(resp.Metadata.LegalFocus) > 0 {
			fmt.Println("\nEnfoque legal:")
			for _, f := range resp.Metadata.LegalFocus {
				fmt.Printf("  - %s\n", f)
			}
		}
	}
}
