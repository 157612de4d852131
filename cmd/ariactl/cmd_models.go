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
	"sort"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show the active model registry",
	Args:  cobra.NoArgs,
	Run:   runModelsList,
}

var modelsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Drop the registry cache so the next request re-reads Supabase",
	Args:  cobra.NoArgs,
	Run:   runModelsRefresh,
}

func runModelsList(cmd *cobra.Command, args []string) {
	var resp struct {
		Agent  string `json:"agent"`
		Models map[string]struct {
			Model       string `json:"model"`
			Mode        string `json:"mode"`
			Description string `json:"description"`
		} `json:"models"`
	}
	if err := getJSON("/v1/models", &resp, nil); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Agent: %s\n\n", resp.Agent)
	useCases := make([]string, 0, len(resp.Models))
	for uc := range resp.Models {
		useCases = append(useCases, uc)
	}
	sort.Strings(useCases)
	for _, uc := range useCases {
		entry := resp.Models[uc]
		fmt.Printf("%-18s %s", uc, entry.Model)
		if entry.Mode != "" {
			fmt.Printf(" (%s)", entry.Mode)
		}
		fmt.Println()
	}
}

func runModelsRefresh(cmd *cobra.Command, args []string) {
	key := adminKey()
	if key == "" {
		log.Fatal("Error: admin key required (--admin-key or ADMIN_API_KEY)")
	}

	headers := map[string]string{"x-admin-key": key}
	if err := postJSON("/v1/models/refresh", struct{}{}, nil, headers); err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Println("Registry cache invalidated.")
}
