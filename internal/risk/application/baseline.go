package application

import (
	"context"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/domain"
	"github.com/shopspring/decimal"
)

// activeHourShare is the minimum share of a subject's activity an hour of
// day needs to count as one of their active hours.
const activeHourShare = 0.05

// RecomputeBaselines rebuilds every active subject's behavioral baseline
// from the trailing window. Runs as a periodic background task, never on
// the request path.
func (e *Engine) RecomputeBaselines(ctx context.Context) (int, error) {
	since := e.now().Add(-time.Duration(e.cfg.BaselineDays) * 24 * time.Hour)

	subjects, err := e.history.ActiveSubjects(ctx, since)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, subjectID := range subjects {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if err := e.recomputeBaseline(ctx, subjectID, since); err != nil {
			e.logger.Error("baseline recompute failed", "subject_id", subjectID, "error", err)
			continue
		}
		updated++
	}

	e.logger.Info("baselines recomputed", "subjects", updated)
	return updated, nil
}

func (e *Engine) recomputeBaseline(ctx context.Context, subjectID string, since time.Time) error {
	entries, err := e.history.RecentBySubject(ctx, subjectID, since)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	baseline := buildBaseline(subjectID, entries, e.now(), time.Duration(e.cfg.BaselineDays)*24*time.Hour)

	profile, err := e.profiles.Get(ctx, subjectID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &domain.Profile{SubjectID: subjectID}
	}
	profile.Baseline = baseline
	profile.UpdatedAt = e.now()
	return e.profiles.Save(ctx, profile)
}

func buildBaseline(subjectID string, entries []domain.HistoryEntry, now time.Time, window time.Duration) *domain.Baseline {
	total := decimal.Zero
	opCounts := make(map[string]int)
	hourCounts := make(map[int]int)

	for _, entry := range entries {
		total = total.Add(entry.Amount)
		opCounts[entry.OperationType]++
		hourCounts[entry.At.Hour()]++
	}

	n := len(entries)
	opFreq := make(map[string]float64, len(opCounts))
	for op, count := range opCounts {
		opFreq[op] = float64(count) / float64(n)
	}

	activeHours := make(map[int]bool)
	for hour, count := range hourCounts {
		if float64(count)/float64(n) >= activeHourShare {
			activeHours[hour] = true
		}
	}

	return &domain.Baseline{
		SubjectID:   subjectID,
		AvgAmount:   total.Div(decimal.NewFromInt(int64(n))),
		AvgPerHour:  float64(n) / window.Hours(),
		OpTypeFreq:  opFreq,
		ActiveHours: activeHours,
		SampleCount: n,
		ComputedAt:  now,
	}
}
