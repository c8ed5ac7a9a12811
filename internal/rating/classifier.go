package rating

import "fmt"

// ClassBand is one row of a classification table. Min is the inclusive lower
// bound; a nil Min matches every remaining score.
type ClassBand struct {
	Min         *float64 `json:"min"`
	Class       string   `json:"class"`
	StressLabel string   `json:"stressLabel"`
}

func floatPtr(f float64) *float64 { return &f }

// DefaultBands is the DIN 50929-3 soil corrosion table.
var DefaultBands = []ClassBand{
	{Min: floatPtr(0), Class: "Ia", StressLabel: "Very low"},
	{Min: floatPtr(-4), Class: "Ib", StressLabel: "Low"},
	{Min: floatPtr(-10), Class: "II", StressLabel: "Medium"},
	{Min: nil, Class: "III", StressLabel: "High"},
}

// Classifier maps a score to a class by walking its bands top-down.
type Classifier struct {
	bands []ClassBand
}

// NewClassifier validates bands and returns a classifier over a copy of them.
// Bands must have strictly descending minimums and end with an unbounded band.
func NewClassifier(bands []ClassBand) (*Classifier, error) {
	if err := validateBands(bands); err != nil {
		return nil, err
	}
	return &Classifier{bands: append([]ClassBand(nil), bands...)}, nil
}

func validateBands(bands []ClassBand) error {
	if len(bands) == 0 {
		return &ConfigError{Subject: "classes", Reason: "at least one band is required"}
	}
	for i, b := range bands {
		if b.Class == "" {
			return &ConfigError{Subject: "classes", Field: fmt.Sprintf("[%d].class", i), Reason: "must not be empty"}
		}
		last := i == len(bands)-1
		if b.Min == nil && !last {
			return &ConfigError{Subject: "classes", Field: fmt.Sprintf("[%d].min", i), Reason: "only the last band may be unbounded"}
		}
		if last && b.Min != nil {
			return &ConfigError{Subject: "classes", Field: fmt.Sprintf("[%d].min", i), Reason: "last band must be unbounded"}
		}
		if i > 0 && b.Min != nil && *b.Min >= *bands[i-1].Min {
			return &ConfigError{Subject: "classes", Field: fmt.Sprintf("[%d].min", i), Reason: "minimums must be strictly descending"}
		}
	}
	return nil
}

// DefaultClassifier returns a classifier over DefaultBands.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultBands)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the first band whose lower bound is at most score.
func (c *Classifier) Classify(score float64) Classification {
	for _, b := range c.bands {
		if b.Min == nil || score >= *b.Min {
			return Classification{Class: b.Class, StressLabel: b.StressLabel}
		}
	}
	// unreachable for a validated table
	last := c.bands[len(c.bands)-1]
	return Classification{Class: last.Class, StressLabel: last.StressLabel}
}

// Bands returns a copy of the classifier's table.
func (c *Classifier) Bands() []ClassBand {
	return append([]ClassBand(nil), c.bands...)
}
