// Package main provides scoutctl, a thin CLI over the Terascout
// control-plane HTTP API. It has no direct store access and exercises
// the same HTTP contract external callers would.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var rootCmd = &cobra.Command{
	Use:   "scoutctl",
	Short: "Admin CLI for the Terascout control plane",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServerAddr(), "terascout control-plane address")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultServerAddr() string {
	if addr := os.Getenv("SCOUTCTL_SERVER"); addr != "" {
		return addr
	}

	return "http://localhost:8080"
}
