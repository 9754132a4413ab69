package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var healthAddr string

// healthCheckCmd probes a running server, for container HEALTHCHECK use.
var healthCheckCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Probe the running server's health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealthCheck(cmd, healthAddr)
	},
}

func init() {
	healthCheckCmd.Flags().StringVar(&healthAddr, "addr", ":8099", "Address the server listens on")
	RootCmd.AddCommand(healthCheckCmd)
}

func runHealthCheck(cmd *cobra.Command, addr string) error {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "http://"+host+"/api/health", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: server answered %s", resp.Status)
	}
	return nil
}
