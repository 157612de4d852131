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

type askPayload struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
	UseCase   string `json:"useCase,omitempty"`
}

type askResponse struct {
	SessionID string `json:"sessionId"`
	Model     string `json:"model"`
	Text      string `json:"text"`
	Sources   []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"sources"`
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the assistant a question",
	Args:  cobra.MinimumNArgs(1),
	Run:   runAskCommand,
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	payload := askPayload{
		Question:  question,
		SessionID: sessionFlag,
		UseCase:   useCaseFlag,
	}

	if streamFlag {
		err := streamSSE("/v1/ask/stream", payload, func(chunk string) {
			fmt.Print(chunk)
		})
		fmt.Println()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	var resp askResponse
	if err := postJSON("/v1/ask/standard", payload, &resp, nil); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\n%s\n", resp.Text)
	if len(resp.Sources) > 0 {
		fmt.Println("\nFuentes:")
		for i, src := range resp.Sources {
			fmt.Printf("%d. %s (%.4f)\n", i+1, src.Name, src.Score)
		}
	}
	fmt.Printf("\n[model: %s | session: %s]\n", resp.Model, resp.SessionID)
}
