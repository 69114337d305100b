package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"stealthcompany.com/fhirrecord/internal/orchestrator"
	"stealthcompany.com/fhirrecord/internal/record"
)

func exportCmd(v *viper.Viper) *cobra.Command {
	var upload, lock bool

	cmd := &cobra.Command{
		Use:   "export <encounter-id>...",
		Short: "Assemble, store and optionally upload the records of encounters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// keys shared with other commands are bound per run
			bindFlags(v, cmd, map[string]string{
				"RESOURCES":       "resources",
				"BUNDLE_TYPE":     "type",
				"OUTPUT_DIR":      "output-dir",
				"DESTINATION_URL": "destination",
			})

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := orchestrator.WithShutdown(cmd.Context())
			defer cancel()

			bundleType, err := a.bundleType()
			if err != nil {
				return err
			}
			diag, err := a.diagnostics()
			if err != nil {
				return err
			}
			sinks, _, err := a.sinks(ctx)
			if err != nil {
				return err
			}

			runner := &record.Runner{
				Assembler: record.New(a.client, a.profile, diag, record.WithBundleType(bundleType)),
				Sinks:     sinks,
			}
			if upload {
				if a.settings.DestinationURL == "" {
					return fmt.Errorf("--upload needs DESTINATION_URL or --destination")
				}
				runner.Uploader = a.client
			}
			if lock {
				couch, err := a.couchbaseClient()
				if err != nil {
					return err
				}
				if couch == nil {
					return fmt.Errorf("--lock needs COUCHBASE_URL")
				}
				runner.Lock = couch.ExportLock("recordctl-export")
			}

			resources := a.resources()
			log.Info().
				Strs("encounters", args).
				Strs("resources", resources).
				Int("sinks", len(sinks)).
				Bool("upload", upload).
				Msg("Starting export")

			summary, err := runner.Run(ctx, args, resources)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "succeeded: %d, degraded: %d, failed: %d\n",
				len(summary.Succeeded), len(summary.Degraded), len(summary.Failed))
			for _, id := range summary.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", id)
			}
			for _, id := range summary.Degraded {
				fmt.Fprintf(cmd.OutOrStdout(), "degraded: %s\n", id)
			}

			if summary.HasErrors() || runner.Assembler.ErrorStatus() {
				return errCompletedWithWarnings
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("resources", "", "comma separated resource types (default: every profile type)")
	flags.String("type", "", "bundle type: transaction, batch or searchset")
	flags.String("output-dir", "", "directory receiving <encounter>.json files")
	flags.String("destination", "", "destination FHIR server receiving the bundles")
	flags.BoolVar(&upload, "upload", false, "upload each bundle to the destination server")
	flags.BoolVar(&lock, "lock", false, "hold the Couchbase export lock during the run")
	return cmd
}
