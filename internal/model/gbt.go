package model

import (
	"fmt"
	"sort"
)

// GBTConfig holds the boosting hyperparameters.
type GBTConfig struct {
	Trees        int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int
}

// treeNode is one node of a regression tree. Leaves have Feature == -1.
// MissingLeft records which child a missing value routes to; the direction is
// learned during the split search by trying both assignments.
type treeNode struct {
	Feature     int     `json:"feature"`
	Threshold   float64 `json:"threshold"`
	MissingLeft bool    `json:"missing_left"`
	Value       float64 `json:"value"`
	Left        int     `json:"left"`
	Right       int     `json:"right"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

// GradientBoostModel is Model B: boosted regression trees over the full
// standardized feature vector, predicting deviation from trend. Missing
// values route through per-split learned directions rather than being
// imputed.
type GradientBoostModel struct {
	Features     []string           `json:"features"`
	BasePred     float64            `json:"base_pred"`
	LearningRate float64            `json:"learning_rate"`
	TreeList     []regressionTree   `json:"trees"`
	Gains        map[string]float64 `json:"gains"`
}

// FitGradientBoost trains the boosted ensemble on squared-error gradients.
// Rows may contain nils in any column; at least MinLeaf*2 rows are required.
func FitGradientBoost(cfg GBTConfig, features []string, rows [][]*float64, deviations []float64) (*GradientBoostModel, error) {
	if len(rows) != len(deviations) {
		return nil, fmt.Errorf("fit gradient boost: %d rows vs %d targets", len(rows), len(deviations))
	}
	if cfg.MinLeaf < 1 {
		cfg.MinLeaf = 1
	}
	if len(rows) < cfg.MinLeaf*2 {
		return nil, fmt.Errorf("fit gradient boost: %d rows below minimum %d", len(rows), cfg.MinLeaf*2)
	}

	base := mean(deviations)
	m := &GradientBoostModel{
		Features:     append([]string(nil), features...),
		BasePred:     base,
		LearningRate: cfg.LearningRate,
		Gains:        make(map[string]float64, len(features)),
	}

	pred := make([]float64, len(rows))
	for i := range pred {
		pred[i] = base
	}

	residual := make([]float64, len(rows))
	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}

	for t := 0; t < cfg.Trees; t++ {
		for i := range rows {
			residual[i] = deviations[i] - pred[i]
		}

		tree := regressionTree{}
		grown := growTree(&tree, cfg, rows, residual, indices, 0, m.Gains, features)
		if !grown {
			// No split improves fit anywhere; further trees would be
			// constant corrections of zero.
			break
		}
		m.TreeList = append(m.TreeList, tree)

		for i, row := range rows {
			pred[i] += cfg.LearningRate * tree.predict(row)
		}
	}

	return m, nil
}

// growTree recursively builds one tree over the index subset, returning false
// when the root itself could not split (the tree is then a useless constant).
func growTree(tree *regressionTree, cfg GBTConfig, rows [][]*float64, target []float64, idx []int, depth int, gains map[string]float64, features []string) bool {
	nodeID := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, treeNode{Feature: -1, Left: -1, Right: -1})
	tree.Nodes[nodeID].Value = meanAt(target, idx)

	if depth >= cfg.MaxDepth || len(idx) < cfg.MinLeaf*2 {
		return false
	}

	split, ok := bestSplit(rows, target, idx, cfg.MinLeaf)
	if !ok {
		return false
	}

	gains[features[split.feature]] += split.gain

	left, right := partition(rows, idx, split)
	tree.Nodes[nodeID].Feature = split.feature
	tree.Nodes[nodeID].Threshold = split.threshold
	tree.Nodes[nodeID].MissingLeft = split.missingLeft

	tree.Nodes[nodeID].Left = len(tree.Nodes)
	growTree(tree, cfg, rows, target, left, depth+1, gains, features)
	tree.Nodes[nodeID].Right = len(tree.Nodes)
	growTree(tree, cfg, rows, target, right, depth+1, gains, features)
	return true
}

type splitCandidate struct {
	feature     int
	threshold   float64
	missingLeft bool
	gain        float64
}

// bestSplit scans every feature and threshold midpoint, evaluating both
// missing-value directions, and returns the variance-reduction maximizer.
func bestSplit(rows [][]*float64, target []float64, idx []int, minLeaf int) (splitCandidate, bool) {
	parentSSE := sseAt(target, idx)
	best := splitCandidate{gain: 1e-9}
	found := false

	nFeatures := len(rows[idx[0]])
	for f := 0; f < nFeatures; f++ {
		var present []int
		var missing []int
		for _, i := range idx {
			if f < len(rows[i]) && rows[i][f] != nil {
				present = append(present, i)
			} else {
				missing = append(missing, i)
			}
		}
		if len(present) < 2 {
			continue
		}

		sort.Slice(present, func(a, b int) bool { return *rows[present[a]][f] < *rows[present[b]][f] })

		for cut := 1; cut < len(present); cut++ {
			lo, hi := *rows[present[cut-1]][f], *rows[present[cut]][f]
			if lo == hi {
				continue
			}
			threshold := (lo + hi) / 2

			for _, missLeft := range missingDirections(len(missing)) {
				left := append([]int(nil), present[:cut]...)
				right := append([]int(nil), present[cut:]...)
				if missLeft {
					left = append(left, missing...)
				} else {
					right = append(right, missing...)
				}
				if len(left) < minLeaf || len(right) < minLeaf {
					continue
				}
				gain := parentSSE - sseAt(target, left) - sseAt(target, right)
				if gain > best.gain {
					best = splitCandidate{feature: f, threshold: threshold, missingLeft: missLeft, gain: gain}
					found = true
				}
			}
		}
	}

	return best, found
}

// missingDirections returns the routing choices to try. With no missing rows
// the direction is irrelevant; a single pass keeps the scan cheap.
func missingDirections(nMissing int) []bool {
	if nMissing == 0 {
		return []bool{true}
	}
	return []bool{true, false}
}

func partition(rows [][]*float64, idx []int, s splitCandidate) (left, right []int) {
	for _, i := range idx {
		v := rows[i][s.feature]
		switch {
		case v == nil:
			if s.missingLeft {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		case *v < s.threshold:
			left = append(left, i)
		default:
			right = append(right, i)
		}
	}
	return left, right
}

func (t *regressionTree) predict(row []*float64) float64 {
	node := 0
	for {
		n := t.Nodes[node]
		if n.Feature < 0 {
			return n.Value
		}
		v := (*float64)(nil)
		if n.Feature < len(row) {
			v = row[n.Feature]
		}
		switch {
		case v == nil:
			if n.MissingLeft {
				node = n.Left
			} else {
				node = n.Right
			}
		case *v < n.Threshold:
			node = n.Left
		default:
			node = n.Right
		}
	}
}

// Predict returns the deviation from trend for one standardized row.
func (m *GradientBoostModel) Predict(row []*float64) float64 {
	pred := m.BasePred
	for i := range m.TreeList {
		pred += m.LearningRate * m.TreeList[i].predict(row)
	}
	return pred
}

// Importance returns split-gain feature importances normalized to sum to 1,
// sorted descending. Features that never split are omitted.
func (m *GradientBoostModel) Importance() []FeatureImportance {
	var total float64
	for _, g := range m.Gains {
		total += g
	}
	if total <= 0 {
		return nil
	}

	out := make([]FeatureImportance, 0, len(m.Gains))
	for f, g := range m.Gains {
		out = append(out, FeatureImportance{Feature: f, Weight: g / total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// FeatureImportance is one entry of a model's normalized importance ranking.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanAt(xs []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += xs[i]
	}
	return sum / float64(len(idx))
}

func sseAt(xs []float64, idx []int) float64 {
	m := meanAt(xs, idx)
	var sse float64
	for _, i := range idx {
		d := xs[i] - m
		sse += d * d
	}
	return sse
}
