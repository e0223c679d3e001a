package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds every flag of cmd into viper under its configuration key
// and annotates the usage text with the matching TRANSFORMER_* environment
// variable, so help output documents all three configuration sources.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		key, ok := keys[flag.Name]
		if !ok {
			return
		}
		viper.BindPFlag(key, flag)
		flag.Usage = fmt.Sprintf("%s (env %s)", flag.Usage, envVarFor(key))
	})
}

// envVarFor maps a configuration key like "server.port" onto its
// environment variable name, TRANSFORMER_SERVER_PORT.
func envVarFor(key string) string {
	return "TRANSFORMER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
