package dream

import (
	"math"
	"time"

	"github.com/becomeliminal/affect-memory/memory"
)

// Score rates how much a memory is worth keeping at now:
//
//	importance * (1 + boost*strongestEmotion) * 2^(-age/halfLife) + accessWeight*ln(1+accessCount)
func (c *Config) Score(r memory.Record, now time.Time) float64 {
	strength := 0.0
	first := true
	for _, v := range r.Emotions {
		if math.IsNaN(v) {
			continue
		}
		if first || v > strength {
			strength, first = v, false
		}
	}

	decay := 1.0
	if c.HalfLife > 0 {
		halfLifeDays := c.HalfLife.Hours() / 24
		decay = math.Exp(-math.Ln2 / halfLifeDays * r.AgeDays(now))
	}

	access := r.AccessCount
	if access < 0 {
		access = 0
	}
	return float64(r.Importance)*(1+c.EmotionBoost*strength)*decay + c.AccessWeight*math.Log1p(float64(access))
}

// Action is what consolidation does with a cluster.
type Action int

const (
	Forget Action = iota
	Compress
	Keep
)

func (a Action) String() string {
	switch a {
	case Forget:
		return "forget"
	case Compress:
		return "compress"
	case Keep:
		return "keep"
	}
	return "unknown"
}

// Classify maps a cluster's mean score to an action. Noise is always
// forgotten.
func (c *Config) Classify(score float64, noise bool) Action {
	switch {
	case noise || score < c.ForgetBelow:
		return Forget
	case score < c.KeepFrom:
		return Compress
	default:
		return Keep
	}
}

// meanEmotions averages each named emotion over the records that carry it.
func meanEmotions(recs []memory.Record) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range recs {
		for k, v := range r.Emotions {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sums[k] += v
			counts[k]++
		}
	}
	if len(sums) == 0 {
		return nil
	}
	out := make(map[string]float64, len(sums))
	for k, s := range sums {
		out[k] = s / float64(counts[k])
	}
	return out
}
