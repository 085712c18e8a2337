// Command server runs the warden authentication gateway.
//
// Configuration is read from a YAML file (--config, WARDEN_CONFIG,
// ./config.yaml or /etc/warden/config.yaml) with WARDEN_* environment
// overrides. See pkg/config for the full list.
//
//	warden serve --config config.yaml
//	warden hash-password < password.txt
//	warden check-config --config config.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Pluggable HTTP authentication gateway",
	Long: `Warden authenticates HTTP requests through an ordered chain of plugins
(sessions, Basic, Bearer, API keys, JWT, local passwords) and exposes
login, logout, whoami and forward-auth endpoints.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (env: WARDEN_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
