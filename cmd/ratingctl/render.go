package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	header lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	dim    lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		s := lipgloss.NewStyle()
		return styles{header: s, ok: s, warn: s, bad: s, dim: s}
	}
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// class colors the DIN classes from green (Ia) to red (III).
func (s styles) class(c string) lipgloss.Style {
	switch c {
	case "Ia", "Ib":
		return s.ok
	case "II":
		return s.warn
	case "III":
		return s.bad
	default:
		return s.dim
	}
}

func renderValidate(w io.Writer, st styles, dir string, r validateReport) {
	fmt.Fprintln(w, st.header.Render("Norm files in "+dir))
	for _, b := range r.Bundles {
		mark := st.ok.Render("✓")
		note := fmt.Sprintf("%d parameters, %d outputs", b.Parameters, b.Outputs)
		if !b.Configured {
			mark = st.warn.Render("!")
			note += ", not configured"
		}
		fmt.Fprintf(w, "  %s %s %s %s\n", mark, b.NormID, st.dim.Render(b.Source), note)
		if len(b.UnknownReferences) > 0 {
			fmt.Fprintf(w, "    %s %s\n", st.warn.Render("unknown references"), joinRefs(b.UnknownReferences))
		}
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s %s\n", st.bad.Render("✗"), e)
	}
	fmt.Fprintf(w, "%s %d valid, %d failed\n", st.header.Render("Summary:"), len(r.Bundles), len(r.Errors))
}

func renderEvaluate(w io.Writer, st styles, r evaluateReport) {
	fmt.Fprintln(w, st.header.Render("Norm "+r.NormID))
	if r.Status != rating.StatusOK {
		fmt.Fprintf(w, "%s %s\n", st.warn.Render(string(r.Status)), r.Message)
	}

	rows := [][]string{{"#", "Name", "Score", "Class", "Stress", "Missing", "Notes"}}
	for _, res := range r.Results {
		class, stress, score := "-", "-", "-"
		if res.Classification != nil {
			class, stress = res.Classification.Class, res.Classification.StressLabel
			score = strconv.FormatFloat(res.PrimaryScore, 'g', -1, 64)
		}
		notes := res.Error
		if len(res.FormulaErrors) > 0 {
			notes = "failed outputs: " + strings.Join(sortedKeys(res.FormulaErrors), ", ")
		}
		rows = append(rows, []string{
			strconv.Itoa(res.Datapoint.SequentialID),
			res.Datapoint.Name,
			score,
			class,
			stress,
			strconv.Itoa(len(res.MissingParameters)),
			notes,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			padded := cell + strings.Repeat(" ", widths[j]-lipgloss.Width(cell))
			switch {
			case i == 0:
				padded = st.header.Render(padded)
			case j == 3:
				padded = st.class(cell).Render(padded)
			}
			cells[j] = padded
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}

	s := r.Summary
	fmt.Fprintf(w, "%s %d of %d classified", st.header.Render("Summary:"), s.Evaluated, s.Count)
	if s.Evaluated > 0 {
		fmt.Fprintf(w, ", score min %g max %g mean %.2f", s.MinScore, s.MaxScore, s.MeanScore)
		parts := make([]string, 0, len(s.ByClass))
		for _, c := range sortedKeys(s.ByClass) {
			parts = append(parts, fmt.Sprintf("%s=%d", c, s.ByClass[c]))
		}
		fmt.Fprintf(w, " (%s)", strings.Join(parts, " "))
	}
	fmt.Fprintln(w)
}
