package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "ratingctl",
		Short: "Corrosion rating tool for norm files and measurement datapoints",
		Long: `ratingctl checks norm bundles against the bundle schema and the rating rules,
and evaluates datapoint files offline with the same engine the server uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v)
		},
	}

	root.PersistentFlags().StringP("format", "f", "table", "Output format (table|json)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	_ = v.BindPFlag("format", root.PersistentFlags().Lookup("format"))
	_ = v.BindPFlag("no-color", root.PersistentFlags().Lookup("no-color"))

	root.AddCommand(newValidateCmd(v), newEvaluateCmd(v), newClassifyCmd(v))
	return root
}

// readConfig loads an optional .ratingctl file from the working directory.
func readConfig(v *viper.Viper) error {
	v.SetEnvPrefix("RATINGCTL")
	v.AutomaticEnv()
	for _, path := range []string{".ratingctl.yaml", ".ratingctl.yml", ".ratingctl.json"} {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("error reading config file: %w", err)
			}
			break
		}
	}
	return nil
}

func outputFormat(v *viper.Viper) (string, error) {
	switch f := v.GetString("format"); f {
	case "table", "json":
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q, want table or json", f)
	}
}
