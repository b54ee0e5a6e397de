package validation

// Benchmark names used as skill-map keys.
const (
	BenchNaiveTrend = "naive_trend"
	BenchPriorYear  = "prior_year"
	BenchRolling5   = "rolling_5yr"
)

// SkillScores computes 1 - MSE_model/MSE_benchmark for each benchmark over
// the records where that benchmark exists. Positive skill means the ensemble
// beats the benchmark; zero means a tie; negative means the benchmark wins.
// A benchmark with a zero MSE (it was exactly right everywhere) is skipped,
// as is one with no comparable records.
func SkillScores(records []Record) map[string]float64 {
	out := make(map[string]float64, 3)

	if s, ok := skillAgainst(records,
		func(r Record) (float64, bool) { return r.Trend, true }); ok {
		out[BenchNaiveTrend] = s
	}
	if s, ok := skillAgainst(records,
		func(r Record) (float64, bool) {
			if r.PriorYear == nil {
				return 0, false
			}
			return *r.PriorYear, true
		}); ok {
		out[BenchPriorYear] = s
	}
	if s, ok := skillAgainst(records,
		func(r Record) (float64, bool) {
			if r.Rolling5 == nil {
				return 0, false
			}
			return *r.Rolling5, true
		}); ok {
		out[BenchRolling5] = s
	}

	return out
}

func skillAgainst(records []Record, bench func(Record) (float64, bool)) (float64, bool) {
	var modelSSE, benchSSE float64
	n := 0
	for _, r := range records {
		b, ok := bench(r)
		if !ok {
			continue
		}
		me := r.Predicted - r.Actual
		be := b - r.Actual
		modelSSE += me * me
		benchSSE += be * be
		n++
	}
	if n == 0 || benchSSE == 0 {
		return 0, false
	}
	return 1 - modelSSE/benchSSE, true
}
