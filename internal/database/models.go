package database

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DatapointInput is the editable part of a datapoint as submitted by a form.
type DatapointInput struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Values    map[string]string `json:"values"`
}

// InvalidValuesError lists raw values rejected by their parameter's input rule,
// keyed by parameter code.
type InvalidValuesError struct {
	Fields map[string]string
}

func (e *InvalidValuesError) Error() string {
	codes := make([]string, 0, len(e.Fields))
	for code := range e.Fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = code + ": " + e.Fields[code]
	}
	return "invalid values: " + strings.Join(parts, "; ")
}

// Analysis is the evaluated state of every datapoint recorded under a norm.
type Analysis struct {
	NormID   string          `json:"normId"`
	NormName string          `json:"normName"`
	Status   rating.Status   `json:"status"`
	Message  string          `json:"message,omitempty"`
	Results  []rating.Result `json:"results"`
	Summary  rating.Summary  `json:"summary"`
}
