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
	"strings"

	"github.com/spf13/cobra"
)

type legalPayload struct {
	Query string `json:"query"`
}

type legalResponse struct {
	Text        string `json:"text"`
	UsedContext []struct {
		Source  string `json:"source"`
		Content string `json:"content"`
	} `json:"usedContext"`
	Transparency string `json:"transparency"`
	Verified     bool   `json:"verified"`
}

var legalCmd = &cobra.Command{
	Use:   "legal [query]",
	Short: "Ask a compliance question with verified citations",
	Args:  cobra.MinimumNArgs(1),
	Run:   runLegalCommand,
}

func runLegalCommand(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	var resp legalResponse
	if err := postJSON("/v1/legal/standard", legalPayload{Query: query}, &resp, nil); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\n%s\n", resp.Text)

	if len(resp.UsedContext) > 0 {
		fmt.Println("\nFragmentos utilizados:")
		for i, frag := range resp.UsedContext {
			fmt.Printf("%d. %s\n", i+1, frag.Source)
		}
	}

	status := "sin verificar"
	if resp.Verified {
		status = "verificada"
	}
	fmt.Printf("\n[respuesta %s | %s]\n", status, resp.Transparency)
}
