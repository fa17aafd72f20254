// Package reconcile turns the cumulative monthly counters published by the portal into daily
// increments and derives the all-regions total.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

// HistoryReader exposes the persisted series a delta is computed against.
type HistoryReader interface {
	// LatestBefore returns the most recent record for the pair dated strictly before date,
	// or nil when there is none.
	LatestBefore(ctx context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error)
}

// Daily computes the increment for cumulative observed on date given the nearest earlier
// record. Counters reset every calendar month, so a prior record from another month is no
// baseline. Gaps between prev and date are irrelevant.
func Daily(prev *models.StatRecord, date time.Time, cumulative int64) int64 {
	if prev == nil || !sameMonth(prev.Date, date) {
		return cumulative
	}
	return cumulative - prev.Cumulative
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

type Option func(*Reconciler)

// WithClampNegative makes negative same-month deltas count as zero.
func WithClampNegative(clamp bool) Option {
	return func(r *Reconciler) { r.clamp = clamp }
}

// WithNegativeDeltaHook is called for every negative same-month delta, before clamping.
func WithNegativeDeltaHook(hook func(rec models.StatRecord, prev models.StatRecord)) Option {
	return func(r *Reconciler) { r.onNegative = hook }
}

type Reconciler struct {
	history    HistoryReader
	clamp      bool
	onNegative func(rec models.StatRecord, prev models.StatRecord)
}

func NewReconciler(history HistoryReader, opts ...Option) *Reconciler {
	r := &Reconciler{history: history}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile builds the record for (practiceID, regionID, date) with its daily value filled in.
// Callers must not reconcile the same pair concurrently, and every earlier-dated write of the
// run must already be visible to the history reader.
func (r *Reconciler) Reconcile(ctx context.Context, practiceID, regionID int, date time.Time, cumulative int64) (models.StatRecord, error) {
	rec := models.StatRecord{
		PracticeID: practiceID,
		RegionID:   regionID,
		Date:       date,
		Cumulative: cumulative,
	}

	prev, err := r.history.LatestBefore(ctx, practiceID, regionID, date)
	if err != nil {
		return rec, fmt.Errorf("latest record before %s for practice %d region %d: %w",
			date.Format(time.DateOnly), practiceID, regionID, err)
	}

	rec.Daily = Daily(prev, date, cumulative)
	if rec.Daily < 0 {
		if r.onNegative != nil {
			r.onNegative(rec, *prev)
		}
		if r.clamp {
			rec.Daily = 0
		}
	}
	return rec, nil
}
