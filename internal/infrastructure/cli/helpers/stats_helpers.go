package helpers

import (
	"sort"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
)

// TargetStatistic is the success record of one (provider, model) pair.
type TargetStatistic struct {
	Target    string
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	AvgTime   time.Duration
}

// SuccessRate returns the percentage of successful responses.
func (s TargetStatistic) SuccessRate() float64 {
	return CalculateSuccessRate(s.Succeeded, s.Total)
}

// CalculateTopTargets aggregates responses per target, most used first.
// If limit is 0 or negative, returns all targets
func CalculateTopTargets(entries []*domain.PromptEntry, limit int) []TargetStatistic {
	stats := aggregateTargets(entries)
	sortStatisticsByUsage(stats)

	if shouldLimitResults(limit, len(stats)) {
		return stats[:limit]
	}
	return stats
}

// aggregateTargets counts outcomes per target; AvgTime covers successful responses only.
func aggregateTargets(entries []*domain.PromptEntry) []TargetStatistic {
	byTarget := make(map[string]*TargetStatistic)
	durations := make(map[string]time.Duration)
	for _, entry := range entries {
		for _, resp := range entry.Responses {
			key := resp.Target().String()
			stat, ok := byTarget[key]
			if !ok {
				stat = &TargetStatistic{Target: key}
				byTarget[key] = stat
			}
			stat.Total++
			switch resp.Status {
			case domain.ResponseSuccess:
				stat.Succeeded++
				durations[key] += resp.Duration
			case domain.ResponseError:
				stat.Failed++
			case domain.ResponseCancelled:
				stat.Cancelled++
			}
		}
	}

	stats := make([]TargetStatistic, 0, len(byTarget))
	for key, stat := range byTarget {
		if stat.Succeeded > 0 {
			stat.AvgTime = durations[key] / time.Duration(stat.Succeeded)
		}
		stats = append(stats, *stat)
	}
	return stats
}

// sortStatisticsByUsage sorts by total (descending) then by target (ascending)
func sortStatisticsByUsage(stats []TargetStatistic) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total == stats[j].Total {
			return stats[i].Target < stats[j].Target
		}
		return stats[i].Total > stats[j].Total
	})
}

func shouldLimitResults(limit int, actualLength int) bool {
	return limit > 0 && actualLength > limit
}

// CalculateSuccessRate calculates the success rate as a percentage
func CalculateSuccessRate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
