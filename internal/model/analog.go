package model

import (
	"fmt"
	"math"
	"sort"
)

// AnalogCandidate is one historical (year, state) row the analog model can
// match against, carrying the realized yield deviation for that year.
type AnalogCandidate struct {
	Year      int        `json:"year"`
	State     string     `json:"state"`
	Row       []*float64 `json:"row"`
	Deviation float64    `json:"deviation"`
}

// AnalogMatch is one selected neighbor with its distance and blend weight.
type AnalogMatch struct {
	Year     int     `json:"year"`
	State    string  `json:"state"`
	Distance float64 `json:"distance"`
	Weight   float64 `json:"weight"`
}

// AnalogModel is Model C: k-nearest historical years in standardized feature
// space at the same point in the season. It predicts the inverse-distance
// weighted mean of the neighbors' yield deviations and keeps the neighbor
// identities for the forecast narrative.
type AnalogModel struct {
	Features   []string          `json:"features"`
	K          int               `json:"k"`
	Candidates []AnalogCandidate `json:"candidates"`
}

// NewAnalogModel builds the model over pre-standardized candidate rows.
func NewAnalogModel(features []string, k int, candidates []AnalogCandidate) (*AnalogModel, error) {
	if k < 1 {
		return nil, fmt.Errorf("analog model: k must be positive, got %d", k)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("analog model: no candidate years")
	}
	return &AnalogModel{
		Features:   append([]string(nil), features...),
		K:          k,
		Candidates: candidates,
	}, nil
}

// Predict returns the weighted deviation and the neighbors it was blended
// from. Dimensions missing on either side are excluded from the distance and
// the remainder renormalized, so a sparse query still matches on what it has.
// Ties in distance break by ascending year, then state, which keeps the
// neighbor list reproducible across runs.
func (m *AnalogModel) Predict(row []*float64) (float64, []AnalogMatch) {
	type scored struct {
		cand AnalogCandidate
		dist float64
	}

	scoredList := make([]scored, 0, len(m.Candidates))
	for _, c := range m.Candidates {
		d, ok := m.distance(row, c.Row)
		if !ok {
			continue
		}
		scoredList = append(scoredList, scored{cand: c, dist: d})
	}
	if len(scoredList) == 0 {
		return 0, nil
	}

	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].dist != scoredList[j].dist {
			return scoredList[i].dist < scoredList[j].dist
		}
		if scoredList[i].cand.Year != scoredList[j].cand.Year {
			return scoredList[i].cand.Year < scoredList[j].cand.Year
		}
		return scoredList[i].cand.State < scoredList[j].cand.State
	})

	k := m.K
	if k > len(scoredList) {
		k = len(scoredList)
	}
	scoredList = scoredList[:k]

	const eps = 1e-6
	var weightSum, devSum float64
	matches := make([]AnalogMatch, 0, k)
	for _, s := range scoredList {
		w := 1 / (s.dist + eps)
		weightSum += w
		devSum += w * s.cand.Deviation
		matches = append(matches, AnalogMatch{
			Year:     s.cand.Year,
			State:    s.cand.State,
			Distance: s.dist,
			Weight:   w,
		})
	}
	for i := range matches {
		matches[i].Weight /= weightSum
	}

	return devSum / weightSum, matches
}

// distance is the Euclidean distance over dimensions present on both sides,
// scaled by sqrt(full/used) so sparse comparisons are not artificially close.
// Comparisons with no shared dimension are unusable.
func (m *AnalogModel) distance(a, b []*float64) (float64, bool) {
	var sum float64
	used := 0
	for i := range m.Features {
		if i >= len(a) || i >= len(b) || a[i] == nil || b[i] == nil {
			continue
		}
		d := *a[i] - *b[i]
		sum += d * d
		used++
	}
	if used == 0 {
		return 0, false
	}
	return math.Sqrt(sum * float64(len(m.Features)) / float64(used)), true
}

// AnalogYears lists the matched years for a forecast row, deduplicated and
// ascending.
func AnalogYears(matches []AnalogMatch) []int {
	seen := make(map[int]bool, len(matches))
	var years []int
	for _, m := range matches {
		if !seen[m.Year] {
			seen[m.Year] = true
			years = append(years, m.Year)
		}
	}
	sort.Ints(years)
	return years
}
