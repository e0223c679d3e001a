// Package cmd provides the command-line interface for the transformer
// service.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --port, ...)
//  2. TRANSFORMER_CONFIG_FILE environment variable
//  3. Individual TRANSFORMER_* environment variables
//     (TRANSFORMER_SERVER_PORT, TRANSFORMER_STYLESHEETS_DIR, ...)
//  4. A transformer.yml configuration file
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "transformer",
	Short: "An XSLT transformation gateway",
	Long: `Transformer is an HTTP gateway that applies cached, compiled XSLT
stylesheets to XML and JSON documents, with auxiliary JSON-LD to RDF and
XML to JSON conversion endpoints.

Quick start:
  transformer serve               Start the HTTP service
  transformer version             Show version information`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default transformer.yml, can also use TRANSFORMER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("TRANSFORMER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("transformer")
	}

	viper.SetEnvPrefix("TRANSFORMER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing config file is fine; env vars and defaults still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
