package rating

import "sort"

// RankEntry is one row of a risk ranking.
type RankEntry struct {
	Rank         int     `json:"rank"`
	DatapointID  string  `json:"datapointId"`
	SequentialID int     `json:"sequentialId"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Class        string  `json:"class"`
}

// Summary aggregates the results of one norm's datapoints.
type Summary struct {
	Count     int            `json:"count"`
	Evaluated int            `json:"evaluated"`
	ByClass   map[string]int `json:"byClass"`
	MinScore  float64        `json:"minScore"`
	MaxScore  float64        `json:"maxScore"`
	MeanScore float64        `json:"meanScore"`
	Ranking   []RankEntry    `json:"ranking"`
}

// Summarize counts classes and ranks classified results from the most to the
// least corrosive. Results without a classification are counted but not
// ranked.
func Summarize(results []Result) Summary {
	s := Summary{
		Count:   len(results),
		ByClass: map[string]int{},
		Ranking: []RankEntry{},
	}
	var sum float64
	for _, r := range results {
		if r.Status != StatusOK || r.Classification == nil {
			continue
		}
		if s.Evaluated == 0 || r.PrimaryScore < s.MinScore {
			s.MinScore = r.PrimaryScore
		}
		if s.Evaluated == 0 || r.PrimaryScore > s.MaxScore {
			s.MaxScore = r.PrimaryScore
		}
		s.Evaluated++
		sum += r.PrimaryScore
		s.ByClass[r.Classification.Class]++
		s.Ranking = append(s.Ranking, RankEntry{
			DatapointID:  r.Datapoint.ID,
			SequentialID: r.Datapoint.SequentialID,
			Name:         r.Datapoint.Name,
			Score:        r.PrimaryScore,
			Class:        r.Classification.Class,
		})
	}
	if s.Evaluated > 0 {
		s.MeanScore = sum / float64(s.Evaluated)
	}

	sort.SliceStable(s.Ranking, func(i, j int) bool {
		if s.Ranking[i].Score != s.Ranking[j].Score {
			return s.Ranking[i].Score < s.Ranking[j].Score
		}
		return s.Ranking[i].SequentialID < s.Ranking[j].SequentialID
	})
	for i := range s.Ranking {
		s.Ranking[i].Rank = i + 1
	}
	return s
}
