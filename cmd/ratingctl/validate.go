package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/normfile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type bundleReport struct {
	Source            string              `json:"source"`
	NormID            string              `json:"normId"`
	Parameters        int                 `json:"parameters"`
	Outputs           int                 `json:"outputs"`
	Configured        bool                `json:"configured"`
	UnknownReferences map[string][]string `json:"unknownReferences,omitempty"`
}

type validateReport struct {
	Bundles []bundleReport `json:"bundles"`
	Errors  []string       `json:"errors"`
}

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate every norm bundle under a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "norms"
			if len(args) == 1 {
				dir = args[0]
			}
			format, err := outputFormat(v)
			if err != nil {
				return err
			}

			loader, err := normfile.NewLoader()
			if err != nil {
				return err
			}
			bundles, loadErr := loader.LoadDir(dir)

			report := validateReport{Bundles: []bundleReport{}, Errors: []string{}}
			for _, b := range bundles {
				norm := b.Norm.WithCatalog(b.Catalog())
				report.Bundles = append(report.Bundles, bundleReport{
					Source:            b.Source,
					NormID:            norm.ID,
					Parameters:        len(norm.Parameters),
					Outputs:           len(norm.OutputConfig),
					Configured:        norm.CheckConfigured() == nil,
					UnknownReferences: norm.UnknownReferences(),
				})
			}
			report.Errors = append(report.Errors, splitJoined(loadErr)...)

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				renderValidate(out, newStyles(v.GetBool("no-color")), dir, report)
			}

			if len(report.Errors) > 0 {
				return fmt.Errorf("%d norm file(s) failed validation", len(report.Errors))
			}
			if len(report.Bundles) == 0 {
				return fmt.Errorf("no norm files found under %s", dir)
			}
			return nil
		},
	}
}

// splitJoined flattens an errors.Join result into one message per error.
func splitJoined(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, splitJoined(e)...)
		}
		return out
	}
	return []string{err.Error()}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinRefs(refs map[string][]string) string {
	parts := make([]string, 0, len(refs))
	for _, name := range sortedKeys(refs) {
		parts = append(parts, name+": "+strings.Join(refs[name], ", "))
	}
	return strings.Join(parts, "; ")
}
