package normfile

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	yamlv3 "gopkg.in/yaml.v3"
)

type datapointDoc struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Timestamp time.Time      `yaml:"timestamp"`
	Values    map[string]any `yaml:"values"`
}

// ParseDatapoints decodes a YAML or JSON list of datapoints. Scalar values
// are kept as entered, so numbers need no quoting. Datapoints without an id
// are numbered from 1 in file order.
func ParseDatapoints(name string, data []byte) ([]rating.Datapoint, error) {
	var docs []datapointDoc
	if err := yamlv3.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%s: parse datapoints: %w", name, err)
	}

	out := make([]rating.Datapoint, 0, len(docs))
	for i, d := range docs {
		dp := rating.Datapoint{
			ID:           d.ID,
			SequentialID: i + 1,
			Name:         d.Name,
			Timestamp:    d.Timestamp,
			Values:       make(map[string]string, len(d.Values)),
		}
		if dp.ID == "" {
			dp.ID = strconv.Itoa(i + 1)
		}
		for code, v := range d.Values {
			switch v := v.(type) {
			case nil:
				dp.Values[code] = ""
			case string:
				dp.Values[code] = v
			case map[string]any, []any:
				return nil, fmt.Errorf("%s: datapoint %d: value %s must be a scalar", name, i+1, code)
			default:
				dp.Values[code] = fmt.Sprint(v)
			}
		}
		out = append(out, dp)
	}
	return out, nil
}

// LoadDatapoints reads a datapoint file.
func LoadDatapoints(path string) ([]rating.Datapoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datapoints: %w", err)
	}
	return ParseDatapoints(path, data)
}
