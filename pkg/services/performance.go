package services

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/relay/pkg/models"
)

// ScenarioPerformance aggregates the recorded executions of a scenario.
type ScenarioPerformance struct {
	ScenarioID      string             `json:"scenario_id"`
	ExecutionCount  int                `json:"execution_count"`
	AverageDuration time.Duration      `json:"average_duration"`
	SuccessRate     float64            `json:"success_rate"`
	Nodes           []NodePerformance  `json:"nodes"`
	Trend           []DailyPerformance `json:"trend"`
}

type NodePerformance struct {
	NodeID          string          `json:"node_id"`
	NodeType        models.NodeType `json:"node_type"`
	Count           int             `json:"count"`
	AverageDuration time.Duration   `json:"average_duration"`
	FailureRate     float64         `json:"failure_rate"`
}

// DailyPerformance groups finished executions by start date (UTC).
type DailyPerformance struct {
	Date            string        `json:"date"`
	Executions      int           `json:"executions"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Performance computes metrics over the last limit executions of a scenario
// (all of them when limit <= 0). Running executions count towards
// ExecutionCount only.
func (s *Execution) Performance(ctx context.Context, scenarioID string, limit int) (*ScenarioPerformance, error) {
	executions, err := s.ListByScenario(ctx, scenarioID, limit)
	if err != nil {
		return nil, err
	}

	return summarize(scenarioID, executions), nil
}

func summarize(scenarioID string, executions []*models.Execution) *ScenarioPerformance {
	result := &ScenarioPerformance{
		ScenarioID:     scenarioID,
		ExecutionCount: len(executions),
		Nodes:          []NodePerformance{},
		Trend:          []DailyPerformance{},
	}

	type nodeTotals struct {
		nodeType models.NodeType
		count    int
		failures int
		duration time.Duration
	}

	type dayTotals struct {
		executions, succeeded, failed int
		duration                      time.Duration
	}

	var (
		finished  int
		succeeded int
		total     time.Duration
		nodes     = map[string]*nodeTotals{}
		days      = map[string]*dayTotals{}
	)

	for _, execution := range executions {
		for _, nr := range execution.NodeResults {
			if nr.EndTime == nil {
				continue
			}

			totals, ok := nodes[nr.NodeID]
			if !ok {
				totals = &nodeTotals{nodeType: nr.NodeType}
				nodes[nr.NodeID] = totals
			}

			totals.count++
			totals.duration += nr.Duration()

			if nr.Status == models.NodeStatusFailed {
				totals.failures++
			}
		}

		if execution.EndTime == nil {
			continue
		}

		duration := execution.EndTime.Sub(execution.StartTime)
		finished++
		total += duration

		date := execution.StartTime.UTC().Format(time.DateOnly)

		day, ok := days[date]
		if !ok {
			day = &dayTotals{}
			days[date] = day
		}

		day.executions++
		day.duration += duration

		if execution.Status == models.ExecutionStatusCompleted {
			succeeded++
			day.succeeded++
		} else {
			day.failed++
		}
	}

	if finished > 0 {
		result.AverageDuration = total / time.Duration(finished)
		result.SuccessRate = float64(succeeded) / float64(finished)
	}

	for id, totals := range nodes {
		result.Nodes = append(result.Nodes, NodePerformance{
			NodeID:          id,
			NodeType:        totals.nodeType,
			Count:           totals.count,
			AverageDuration: totals.duration / time.Duration(totals.count),
			FailureRate:     float64(totals.failures) / float64(totals.count),
		})
	}

	sort.Slice(result.Nodes, func(i, j int) bool { return result.Nodes[i].NodeID < result.Nodes[j].NodeID })

	for date, day := range days {
		result.Trend = append(result.Trend, DailyPerformance{
			Date:            date,
			Executions:      day.executions,
			Succeeded:       day.succeeded,
			Failed:          day.failed,
			AverageDuration: day.duration / time.Duration(day.executions),
		})
	}

	sort.Slice(result.Trend, func(i, j int) bool { return result.Trend[i].Date < result.Trend[j].Date })

	return result
}
