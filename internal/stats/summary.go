package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"automl/internal/model"
)

// SearchSummary condenses a target's best-fitness series and its ledger.
// FirstBestGeneration is the first generation that reached FinalBest.
type SearchSummary struct {
	Target              string         `json:"target"`
	Generations         int            `json:"generations"`
	InitialBest         int            `json:"initial_best"`
	FinalBest           int            `json:"final_best"`
	Improvement         int            `json:"improvement"`
	FirstBestGeneration int            `json:"first_best_generation"`
	BestMean            float64        `json:"best_mean"`
	BestStd             float64        `json:"best_std"`
	BestMax             int            `json:"best_max"`
	BestMin             int            `json:"best_min"`
	Trials              int            `json:"trials"`
	TrialsByAlgorithm   map[string]int `json:"trials_by_algorithm"`
	BestAlgorithm       string         `json:"best_algorithm,omitempty"`
	BestPrimary         *float64       `json:"best_primary,omitempty"`
}

func Summarize(target string, bestByGeneration []int, trials []model.TrialRecord) SearchSummary {
	summary := SearchSummary{
		Target:            target,
		Generations:       len(bestByGeneration),
		Trials:            len(trials),
		TrialsByAlgorithm: make(map[string]int),
	}
	for _, trial := range trials {
		summary.TrialsByAlgorithm[trial.Algorithm]++
	}
	if len(trials) > 0 {
		summary.BestAlgorithm = trials[0].Algorithm
		if primary := trials[0].Primary(); !math.IsNaN(primary) {
			summary.BestPrimary = &primary
		}
	}
	if len(bestByGeneration) == 0 {
		return summary
	}

	values := make([]float64, len(bestByGeneration))
	summary.BestMax = bestByGeneration[0]
	summary.BestMin = bestByGeneration[0]
	for i, best := range bestByGeneration {
		values[i] = float64(best)
		if best > summary.BestMax {
			summary.BestMax = best
		}
		if best < summary.BestMin {
			summary.BestMin = best
		}
	}
	summary.InitialBest = bestByGeneration[0]
	summary.FinalBest = bestByGeneration[len(bestByGeneration)-1]
	summary.Improvement = summary.FinalBest - summary.InitialBest
	for i, best := range bestByGeneration {
		if best == summary.FinalBest {
			summary.FirstBestGeneration = i
			break
		}
	}
	if len(values) > 1 {
		summary.BestMean, summary.BestStd = stat.MeanStdDev(values, nil)
	} else {
		summary.BestMean = values[0]
	}
	return summary
}
