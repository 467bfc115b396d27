package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/navincodesalot/terascout/internal/api"
)

var getCmd = &cobra.Command{
	Use:   "get [scoutId]",
	Short: "Read a scout's config and events",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := httpClient.Get(serverAddr + "/api/scouts/" + args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("no scout with id %q", args[0])
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s: %s", resp.Status, readBody(resp))
		}

		var out api.GetScoutResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		pretty, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("format response: %w", err)
		}

		fmt.Println(string(pretty))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
