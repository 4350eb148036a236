package ledger

import (
	"math/big"
)

// ratePrecision is the number of decimal places kept when dividing total by
// target before converting the ratio to float64.
const ratePrecision = 16

// Goal is the subset of a crystal the ledger needs.
type Goal struct {
	ID     int64
	Title  string
	Target Amount
	Unit   string
}

// Summary is the derived progress view of a goal. It is never stored.
type Summary struct {
	CrystalID    int64   `json:"crystal_id"`
	Title        string  `json:"title"`
	TargetValue  Amount  `json:"target_value"`
	Unit         string  `json:"unit"`
	TotalValue   Amount  `json:"total_value"`
	ProgressRate float64 `json:"progress_rate"`
}

// Total sums values exactly.
func Total(values []Amount) Amount {
	sum := Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum
}

// Rate returns total/target clamped to [0, 1]. A target <= 0 yields 0.
func Rate(total, target Amount) float64 {
	if target.Sign() <= 0 {
		return 0
	}
	r := total.d.DivRound(target.d, ratePrecision).InexactFloat64()
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

// Percent returns floor(value / target * 100) for a single record. Unlike
// Rate it is not clamped: an oversized record reports more than 100.
// A target <= 0 yields 0.
//
// TODO(product): confirm whether >100 is meant as a milestone signal or
// should be clamped like Rate.
func Percent(value, target Amount) int64 {
	if target.Sign() <= 0 {
		return 0
	}
	den := target.scaled()
	if den.Sign() == 0 {
		return 0
	}
	num := new(big.Int).Mul(value.scaled(), big.NewInt(100))
	q := new(big.Int).Div(num, den) // Euclidean; floor for positive divisor
	if !q.IsInt64() {
		if q.Sign() < 0 {
			return minInt64
		}
		return maxInt64
	}
	return q.Int64()
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)

// Summarize computes the summary of g given every committed record value.
func Summarize(g Goal, values []Amount) Summary {
	total := Total(values)
	return Summary{
		CrystalID:    g.ID,
		Title:        g.Title,
		TargetValue:  g.Target,
		Unit:         g.Unit,
		TotalValue:   total,
		ProgressRate: Rate(total, g.Target),
	}
}

// Completed reports whether the summary has reached its target.
func (s Summary) Completed() bool {
	return s.TargetValue.Sign() > 0 && s.TotalValue.Cmp(s.TargetValue) >= 0
}
