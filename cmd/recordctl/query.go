package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"stealthcompany.com/fhirrecord/internal/fhirpathq"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/orchestrator"
)

func queryCmd(v *viper.Viper) *cobra.Command {
	var file, url, key string
	var useFHIRPath bool

	cmd := &cobra.Command{
		Use:   "query [path]",
		Short: "Resolve a dotted path, a key or a FHIRPath expression in a JSON document",
		Long: "Reads a JSON document from --file or --url and prints the values found.\n" +
			"A path such as entry.X.resource.id enumerates the array at X.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (url == "") {
				return fmt.Errorf("exactly one of --file or --url is required")
			}
			if key == "" && len(args) == 0 {
				return fmt.Errorf("a path or --key is required")
			}

			var data []byte
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", file, err)
				}
				data = b
			} else {
				a, err := newApp(v)
				if err != nil {
					return err
				}
				defer a.close()

				ctx, cancel := orchestrator.WithShutdown(cmd.Context())
				defer cancel()

				resp, err := a.client.Get(ctx, url)
				if err != nil {
					return err
				}
				if !resp.OK() {
					return fmt.Errorf("download error: %s returned status %d", url, resp.StatusCode)
				}
				data = resp.Body
			}

			doc, err := jsonpath.Parse(data)
			if err != nil {
				return fmt.Errorf("failed to parse document: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case key != "":
				return printNode(out, jsonpath.FindKey(doc, key).Node())
			case useFHIRPath:
				values, err := fhirpathq.New().Evaluate(args[0], doc)
				if err != nil {
					return err
				}
				for _, value := range values {
					fmt.Fprintln(out, value)
				}
				return nil
			default:
				results, err := jsonpath.Resolve(args[0], doc)
				if err != nil {
					return err
				}
				return printNode(out, results.Node())
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&file, "file", "", "local JSON file")
	flags.StringVar(&url, "url", "", "URL fetched from the FHIR server")
	flags.StringVar(&key, "key", "", "find every value stored under this key")
	flags.BoolVar(&useFHIRPath, "fhirpath", false, "treat the path as a FHIRPath expression")

	return cmd
}
