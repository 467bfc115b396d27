package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [scoutId]",
	Aliases: []string{"rm"},
	Short:   "Delete a scout",
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodDelete, serverAddr+"/api/scouts/"+args[0], nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %s: %s", resp.Status, readBody(resp))
		}

		fmt.Printf("deleted %s\n", args[0])

		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
