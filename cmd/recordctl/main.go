package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"stealthcompany.com/fhirrecord/internal/config"
)

// errCompletedWithWarnings makes the process exit with status 2
var errCompletedWithWarnings = errors.New("completed with warnings, check the diagnostic log")

func main() {
	config.LoadDotEnv()
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "recordctl",
		Short:         "Assemble the FHIR resources of encounters into bundles",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("fhir-base-url", "", "source FHIR server base URL")
	flags.String("profile-config", "", "profile file with per-resource search settings")
	flags.String("profile", "", "profile name inside the profile file")
	flags.String("log-level", "", "console log level (trace, debug, info, warn, error)")
	flags.String("log-path", "", "append-only diagnostic log")
	bindFlags(v, rootCmd, map[string]string{
		"FHIR_BASE_URL":       "fhir-base-url",
		"PROFILE_CONFIG_PATH": "profile-config",
		"PROFILE":             "profile",
		"LOG_LEVEL":           "log-level",
		"LOG_PATH":            "log-path",
	})

	rootCmd.AddCommand(exportCmd(v))
	rootCmd.AddCommand(queryCmd(v))
	rootCmd.AddCommand(serveCmd(v))

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errCompletedWithWarnings) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// bindFlags binds settings keys to the persistent or local flags of cmd
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		if flag != nil {
			_ = v.BindPFlag(key, flag)
		}
	}
}
