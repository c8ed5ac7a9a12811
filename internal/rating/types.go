package rating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// RangeType determines how raw input for a parameter is validated and rated.
type RangeType string

const (
	RangeTypeRange        RangeType = "range"
	RangeTypeSelection    RangeType = "selection"
	RangeTypeOpen         RangeType = "open"
	RangeTypeGreater      RangeType = "greater"
	RangeTypeLess         RangeType = "less"
	RangeTypeGreaterEqual RangeType = "greaterEqual"
	RangeTypeLessEqual    RangeType = "lessEqual"
)

// IsValid reports whether t is one of the known range types.
func (t RangeType) IsValid() bool {
	switch t {
	case RangeTypeRange, RangeTypeSelection, RangeTypeOpen,
		RangeTypeGreater, RangeTypeLess, RangeTypeGreaterEqual, RangeTypeLessEqual:
		return true
	}
	return false
}

// Unit is the unit of measure of a parameter.
type Unit string

const (
	UnitNone          Unit = ""
	UnitPercent       Unit = "%"
	UnitPH            Unit = "pH"
	UnitOhmCentimeter Unit = "Ω·cm"
	UnitOhmMeter      Unit = "Ω·m"
	UnitMgPerKg       Unit = "mg/kg"
	UnitMmolPerKg     Unit = "mmol/kg"
	UnitMmolPerLiter  Unit = "mmol/l"
	UnitMillivolt     Unit = "mV"
	UnitVolt          Unit = "V"
	UnitCelsius       Unit = "°C"
	UnitMeter         Unit = "m"
	UnitCentimeter    Unit = "cm"
	UnitMicroSiemens  Unit = "µS/cm"
)

var knownUnits = map[Unit]struct{}{
	UnitNone: {}, UnitPercent: {}, UnitPH: {}, UnitOhmCentimeter: {}, UnitOhmMeter: {},
	UnitMgPerKg: {}, UnitMmolPerKg: {}, UnitMmolPerLiter: {}, UnitMillivolt: {}, UnitVolt: {},
	UnitCelsius: {}, UnitMeter: {}, UnitCentimeter: {}, UnitMicroSiemens: {},
}

// IsValid reports whether u belongs to the closed set of supported units.
func (u Unit) IsValid() bool {
	_, ok := knownUnits[u]
	return ok
}

// Parameter is a measurable quantity from the shared parameter catalogue.
type Parameter struct {
	ID         string    `json:"id"`
	ShortName  string    `json:"shortName"`
	Name       string    `json:"name"`
	Unit       Unit      `json:"unit,omitempty"`
	RangeType  RangeType `json:"rangeType"`
	RangeValue string    `json:"rangeValue"`
	// AcceptsImpurities lets a range parameter take ImpuritiesValue in place
	// of a number.
	AcceptsImpurities bool `json:"acceptsImpurities,omitempty"`
}

// Bound is one limit of a rating band. The literal is kept as entered so that
// selection options and formatted numbers such as "(-1)" or "10,000" survive a
// JSON round trip unchanged.
type Bound struct {
	raw    string
	quoted bool
}

// NumberBound returns a numeric bound.
func NumberBound(f float64) Bound {
	b, _ := json.Marshal(f)
	return Bound{raw: string(b)}
}

// StringBound returns a bound holding a string literal.
func StringBound(s string) Bound {
	return Bound{raw: s, quoted: true}
}

// String returns the literal of the bound.
func (b Bound) String() string { return b.raw }

// Float parses the bound as a number after stripping formatting.
func (b Bound) Float() (float64, bool) {
	return parseNumeric(b.raw)
}

// MarshalJSON keeps the original number/string form.
func (b Bound) MarshalJSON() ([]byte, error) {
	if b.quoted {
		return json.Marshal(b.raw)
	}
	if b.raw == "" {
		return []byte("null"), nil
	}
	return []byte(b.raw), nil
}

// UnmarshalJSON accepts a JSON number or string.
func (b *Bound) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Bound{raw: s, quoted: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("bound must be a number or string: %w", err)
	}
	*b = Bound{raw: n.String()}
	return nil
}

// RatingRange is one band of a parameter's rating rule under a norm. A nil Max
// means the band is unbounded above. For selection parameters Min holds the
// option literal.
type RatingRange struct {
	Min    Bound   `json:"min"`
	Max    *Bound  `json:"max"`
	Rating float64 `json:"rating"`
}

// NormParameter associates a catalogue parameter with its rating bands under a
// norm. Code is the key used in datapoint values and formulas; it falls back to
// ParameterID. RangeType and AcceptsImpurities are copied from the catalogue
// by the calling layer.
type NormParameter struct {
	ParameterID       string        `json:"parameterId"`
	Code              string        `json:"code,omitempty"`
	RangeType         RangeType     `json:"rangeType,omitempty"`
	AcceptsImpurities bool          `json:"acceptsImpurities,omitempty"`
	RatingRanges      []RatingRange `json:"ratingRanges"`
}

// Key returns the code the association is addressed by.
func (np NormParameter) Key() string {
	if np.Code != "" {
		return np.Code
	}
	return np.ParameterID
}

// OutputDefinition is a named formula over the rating mapping.
type OutputDefinition struct {
	Name        string `json:"name"`
	Formula     string `json:"formula"`
	Description string `json:"description,omitempty"`
}

// Norm is a versioned assessment standard: which parameters take part, how
// they are rated and how ratings combine into scores.
type Norm struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Version            string             `json:"version,omitempty"`
	Parameters         []NormParameter    `json:"parameters"`
	OutputConfig       []OutputDefinition `json:"outputConfig"`
	Classes            []ClassBand        `json:"classes,omitempty"`
	ExpectedParameters []string           `json:"expectedParameters,omitempty"`
}

// Codes returns the association keys of the norm in declaration order.
func (n Norm) Codes() []string {
	codes := make([]string, 0, len(n.Parameters))
	for _, np := range n.Parameters {
		codes = append(codes, np.Key())
	}
	return codes
}

// Expected returns the parameter codes a complete datapoint should carry.
func (n Norm) Expected() []string {
	if len(n.ExpectedParameters) > 0 {
		return n.ExpectedParameters
	}
	return n.Codes()
}

// WithCatalog returns a copy of the norm whose associations carry the range
// type and impurities flag of the matching catalogue parameter.
func (n Norm) WithCatalog(params map[string]Parameter) Norm {
	out := n
	out.Parameters = make([]NormParameter, len(n.Parameters))
	for i, np := range n.Parameters {
		if p, ok := params[np.ParameterID]; ok {
			np.RangeType = p.RangeType
			np.AcceptsImpurities = p.AcceptsImpurities
		}
		out.Parameters[i] = np
	}
	return out
}

// Datapoint is one measurement event. Ratings is derived from Values and must
// be recomputed whenever Values or the norm's rules change.
type Datapoint struct {
	ID           string             `json:"id"`
	NormID       string             `json:"normId,omitempty"`
	SequentialID int                `json:"sequentialId"`
	Name         string             `json:"name"`
	Timestamp    time.Time          `json:"timestamp"`
	Values       map[string]string  `json:"values"`
	Ratings      map[string]float64 `json:"ratings,omitempty"`
}

func (d Datapoint) clone() Datapoint {
	out := d
	out.Values = maps.Clone(d.Values)
	out.Ratings = maps.Clone(d.Ratings)
	return out
}

// Classification is the risk class derived from a primary score.
type Classification struct {
	Class       string `json:"class"`
	StressLabel string `json:"stressLabel"`
}
