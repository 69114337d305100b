package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"stealthcompany.com/fhirrecord/internal/api"
	"stealthcompany.com/fhirrecord/internal/metrics"
	"stealthcompany.com/fhirrecord/internal/orchestrator"
	"stealthcompany.com/fhirrecord/internal/record"
)

const systemMetricsInterval = 15 * time.Second

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve encounter records over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(v, cmd, map[string]string{
				"API_PORT":   "port",
				"RESOURCES":  "resources",
				"OUTPUT_DIR": "output-dir",
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
			_, loader, err := a.sinks(ctx)
			if err != nil {
				return err
			}

			newAssembler := func(opts ...record.Option) *record.Assembler {
				base := []record.Option{diag, record.WithBundleType(bundleType)}
				return record.New(a.client, a.profile, append(base, opts...)...)
			}
			handlers := api.NewHandlers(newAssembler, a.resources(), loader)

			server := &http.Server{
				Addr:              ":" + a.settings.APIPort,
				Handler:           api.SetupRoutes(handlers),
				ReadHeaderTimeout: 10 * time.Second,
			}

			sm := orchestrator.NewServiceManager(server)
			if a.settings.EnableSystemMetrics {
				sm.Go(func(ctx context.Context) {
					metrics.StartSystemMetrics(ctx, systemMetricsInterval)
				})
			}
			return sm.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("port", "", "listen port")
	flags.String("resources", "", "resource types assembled when a request names none")
	flags.String("output-dir", "", "directory of exported bundles served under /bundles")

	return cmd
}
