package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/rewards"
)

// =============================================================================
// RETROACTIVE PROPAGATION - Forward-only re-derivation after an edit
// =============================================================================
//
// Both walks run strictly in ascending date order, each day depending on the
// one before it. Callers persist the returned dates.

// AdjustCurrentHistoryRetroactive re-seeds every day in (date, end] from
// the effective amounts of the day before, where end is today or the latest
// cached day after today that was already seeded. It stops before the first
// day that has an override and returns the adjusted dates.
func (s *GameSession) AdjustCurrentHistoryRetroactive(ctx context.Context, date DateKey) ([]DateKey, error) {
	end := s.seededHorizon()
	if date >= end {
		return nil, nil
	}
	if err := s.PopulateSessionDateRange(ctx, date, end); err != nil {
		return nil, err
	}

	var adjusted []DateKey
	prev := s.days[date]
	for d := date.Next(); d <= end; d = d.Next() {
		day := s.days[d]
		if day.HasOverride() {
			break
		}
		day.SetInitial(prev.EffectiveCurrencies())
		adjusted = append(adjusted, d)
		prev = day
	}

	s.logger.WithFields(logrus.Fields{
		"date":     date.String(),
		"adjusted": len(adjusted),
	}).Debug("adjusted currency history")
	return adjusted, nil
}

// seededHorizon is the latest cached day after today whose initial amounts
// were seeded or loaded, or today when there is none.
func (s *GameSession) seededHorizon() DateKey {
	end := s.Today()
	for d, day := range s.days {
		if d > end && day.Seeded() {
			end = d
		}
	}
	return end
}

// AdjustSteppedRewardsValuesRetroactive re-derives the stepped rewards of
// task for every later day of window after from. The running baseline starts
// at the highest of newValue and the values recorded since window.Start, and
// only ever rises. The walk stops at the first overridden day. Returns the
// dates whose task currencies changed.
func (s *GameSession) AdjustSteppedRewardsValuesRetroactive(ctx context.Context, task rewards.Task, t TaskType, from DateKey, window Period, newValue int) ([]DateKey, error) {
	if !task.IsStepped() || from >= window.End {
		return nil, nil
	}
	if err := s.PopulateSessionDateRange(ctx, from.Next(), window.End); err != nil {
		return nil, err
	}

	baseline := newValue
	if h := s.HighestProgressForTaskInRange(t, task.ID, window.Start, from.Next()); h.Value > baseline {
		baseline = h.Value
	}

	var adjusted []DateKey
	for d := from.Next(); d <= window.End; d = d.Next() {
		day := s.days[d]
		if day.HasOverride() {
			break
		}
		if !day.Populated {
			continue
		}
		p := day.Progress(t, task.ID)
		if p == nil {
			continue
		}
		value := p.Value
		derived := s.calc.Stepped(task.SteppedRewards, baseline, value)
		if !currency.Equal(derived, p.Currencies) {
			day.SetProgressCurrencies(t, task.ID, derived)
			adjusted = append(adjusted, d)
		}
		if value > baseline {
			baseline = value
		}
	}
	return adjusted, nil
}

// AdjustRankedStageValuesRetroactive is the per-stage form of
// AdjustSteppedRewardsValuesRetroactive. values are the stage values on from.
func (s *GameSession) AdjustRankedStageValuesRetroactive(ctx context.Context, task rewards.Task, t TaskType, from DateKey, window Period, values map[string]int) ([]DateKey, error) {
	if !task.IsRanked() || from >= window.End {
		return nil, nil
	}
	if err := s.PopulateSessionDateRange(ctx, from.Next(), window.End); err != nil {
		return nil, err
	}

	baselines := StageBaselines(s.HighestProgressForRankedStagesInRange(t, task.ID, window.Start, from.Next()))
	for stage, v := range values {
		if v > baselines[stage] {
			baselines[stage] = v
		}
	}

	var adjusted []DateKey
	for d := from.Next(); d <= window.End; d = d.Next() {
		day := s.days[d]
		if day.HasOverride() {
			break
		}
		if !day.Populated {
			continue
		}
		p := day.Progress(t, task.ID)
		if p == nil {
			continue
		}
		stageValues := p.RankedStageValues
		derived := s.calc.RankedStages(task.RankedStages, baselines, stageValues)
		if !currency.Equal(derived, p.Currencies) {
			day.SetProgressCurrencies(t, task.ID, derived)
			adjusted = append(adjusted, d)
		}
		for stage, v := range stageValues {
			if v > baselines[stage] {
				baselines[stage] = v
			}
		}
	}
	return adjusted, nil
}
