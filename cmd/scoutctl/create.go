package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/navincodesalot/terascout/internal/api"
)

var (
	createQuery     string
	createEmail     string
	createExpiresAt string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new scout",
	RunE: func(_ *cobra.Command, _ []string) error {
		req := api.CreateScoutRequest{
			Query: createQuery,
			Email: createEmail,
		}

		if createExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, createExpiresAt)
			if err != nil {
				return fmt.Errorf("invalid --expires-at (want RFC3339): %w", err)
			}

			req.ExpiresAt = &t
		}

		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		resp, err := httpClient.Post(serverAddr+"/api/scouts", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("server returned %s: %s", resp.Status, readBody(resp))
		}

		var out api.CreateScoutResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		fmt.Println(out.ScoutID)

		return nil
	},
}

func readBody(resp *http.Response) string {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	return string(data)
}

func init() {
	createCmd.Flags().StringVar(&createQuery, "query", "", "what to monitor for (required)")
	createCmd.Flags().StringVar(&createEmail, "email", "", "notification recipient (required)")
	createCmd.Flags().StringVar(&createExpiresAt, "expires-at", "", "RFC3339 expiry override")

	_ = createCmd.MarkFlagRequired("query")
	_ = createCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(createCmd)
}
