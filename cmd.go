package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	serverPort string
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Portfolio website server",
	Long: `portfolio serves a portfolio site rendered from a single project
document, with a filterable work grid, project detail dialogs and a contact
form. Running it without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE:  runServe,
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a portfolio document against the item schema",
	Long: `validate loads the portfolio document (the configured data source when
no path is given) and reports every item that would be skipped when serving.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		location := cfg.Data.Source
		if len(args) == 1 {
			location = args[0]
		}
		return validateDocument(cmd, location)
	},
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if serverPort != "" {
		cfg.Server.Port = serverPort
	}
	return serve(cfg)
}

func validateDocument(cmd *cobra.Command, location string) error {
	items, err := NewSource(location, nil).Load(context.Background())
	if err != nil && !errors.Is(err, ErrInvalidItems) {
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	state := NewState(items)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid items, %d featured\n", location, len(items), len(state.Featured()))
	for _, cat := range state.Categories() {
		if err := state.SetFilter(cat); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", cat, len(state.Filtered()))
		}
	}
	if err != nil {
		return errors.New("portfolio document has invalid items")
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	serveCmd.Flags().StringVarP(&serverPort, "port", "p", "", "port to listen on (overrides PORT)")
	rootCmd.Flags().AddFlag(serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd, validateCmd)
}
