package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/normfile"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type evaluateReport struct {
	NormID  string          `json:"normId"`
	Status  rating.Status   `json:"status"`
	Message string          `json:"message,omitempty"`
	Results []rating.Result `json:"results"`
	Summary rating.Summary  `json:"summary"`
}

func newEvaluateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a datapoint file against a norm file",
		Example: `  ratingctl evaluate --norm norms/din50929-3.yaml --datapoints bores.yaml
  ratingctl evaluate -n norms/din50929-3.yaml -d bores.json -f json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(v)
			if err != nil {
				return err
			}

			loader, err := normfile.NewLoader()
			if err != nil {
				return err
			}
			bundle, err := loader.LoadFile(v.GetString("norm"))
			if err != nil {
				return err
			}
			dps, err := normfile.LoadDatapoints(v.GetString("datapoints"))
			if err != nil {
				return err
			}

			norm := bundle.Norm.WithCatalog(bundle.Catalog())
			for i := range dps {
				dps[i].NormID = norm.ID
			}

			engine := rating.NewEngine(
				rating.WithPrimaryOutput(v.GetString("primary")),
				rating.WithWorkers(v.GetInt("workers")),
			)
			results, err := engine.EvaluateDatapoints(cmd.Context(), dps, norm)

			report := evaluateReport{NormID: norm.ID, Status: rating.StatusOK}
			switch {
			case err == nil:
			case rating.IsNotConfigured(err):
				report.Status = rating.StatusNotConfigured
				report.Message = err.Error()
			default:
				return err
			}
			report.Results = results
			report.Summary = rating.Summarize(results)

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			renderEvaluate(out, newStyles(v.GetBool("no-color")), report)
			return nil
		},
	}

	cmd.Flags().StringP("norm", "n", "", "Norm bundle file (YAML or JSON)")
	cmd.Flags().StringP("datapoints", "d", "", "Datapoint file (YAML or JSON list)")
	cmd.Flags().String("primary", rating.DefaultPrimaryOutput, "Output that is classified")
	cmd.Flags().Int("workers", 0, "Concurrent evaluations (0 uses GOMAXPROCS)")
	_ = cmd.MarkFlagRequired("norm")
	_ = cmd.MarkFlagRequired("datapoints")
	for _, name := range []string{"norm", "datapoints", "primary", "workers"} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func newClassifyCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <score>",
		Short: "Classify a primary score with the default class table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("score %q is not a number", args[0])
			}
			cls := rating.NewEngine().Classify(score)
			if v.GetString("format") == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(cls)
			}
			st := newStyles(v.GetBool("no-color"))
			fmt.Fprintf(cmd.OutOrStdout(), "%g  %s  %s\n", score, st.class(cls.Class).Render(cls.Class), st.dim.Render(cls.StressLabel))
			return nil
		},
	}
}
