package main

import (
	"fmt"

	"github.com/freekieb7/biu/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect a config file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a biu configuration file without starting the server.

Environment overrides (BIU_*) are applied before validation.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  biu config validate -c biu.yaml`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd)

	for _, cmd := range []*cobra.Command{configValidateCmd, configShowCmd} {
		cmd.Flags().StringP("config", "c", "", "path to config file (required)")
		_ = cmd.MarkFlagRequired("config")
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	counts := make(map[string]int)
	for _, route := range cfg.Routes {
		counts[route.Kind]++
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Address: %s\n", cfg.Server.Addr)
	fmt.Fprintf(out, "  Workers: %d\n", cfg.Server.Workers)
	fmt.Fprintf(out, "  Routes:  %d (%d static, %d text, %d echo)\n",
		len(cfg.Routes), counts[config.KindStatic], counts[config.KindText], counts[config.KindEcho])
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return cfg.Dump(cmd.OutOrStdout())
}
