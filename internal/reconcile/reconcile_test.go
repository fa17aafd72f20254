package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) LatestBefore(ctx context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error) {
	args := m.Called(ctx, practiceID, regionID, date)
	rec, _ := args.Get(0).(*models.StatRecord)
	return rec, args.Error(1)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaily(t *testing.T) {
	t.Run("NoPrior", func(t *testing.T) {
		assert.Equal(t, int64(55), Daily(nil, day(2025, 4, 24), 55))
	})

	t.Run("SameMonth", func(t *testing.T) {
		prev := &models.StatRecord{Date: day(2025, 4, 9), Cumulative: 100}
		assert.Equal(t, int64(30), Daily(prev, day(2025, 4, 10), 130))
	})

	t.Run("PreviousMonth", func(t *testing.T) {
		prev := &models.StatRecord{Date: day(2025, 3, 31), Cumulative: 900}
		assert.Equal(t, int64(40), Daily(prev, day(2025, 4, 1), 40))
	})

	t.Run("SameMonthOtherYear", func(t *testing.T) {
		prev := &models.StatRecord{Date: day(2024, 4, 20), Cumulative: 900}
		assert.Equal(t, int64(40), Daily(prev, day(2025, 4, 21), 40))
	})

	t.Run("GapWithinMonth", func(t *testing.T) {
		prev := &models.StatRecord{Date: day(2025, 4, 3), Cumulative: 10}
		assert.Equal(t, int64(90), Daily(prev, day(2025, 4, 20), 100))
	})

	t.Run("NegativeKept", func(t *testing.T) {
		prev := &models.StatRecord{Date: day(2025, 4, 3), Cumulative: 50}
		assert.Equal(t, int64(-10), Daily(prev, day(2025, 4, 4), 40))
	})
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()
	date := day(2025, 4, 10)

	t.Run("UsesHistory", func(t *testing.T) {
		history := new(MockHistory)
		history.On("LatestBefore", ctx, 1, 2, date).Return(&models.StatRecord{PracticeID: 1, RegionID: 2, Date: day(2025, 4, 9), Cumulative: 100}, nil)

		rec, err := NewReconciler(history).Reconcile(ctx, 1, 2, date, 130)
		require.NoError(t, err)
		assert.Equal(t, models.StatRecord{PracticeID: 1, RegionID: 2, Date: date, Cumulative: 130, Daily: 30}, rec)
		history.AssertExpectations(t)
	})

	t.Run("FirstObservation", func(t *testing.T) {
		history := new(MockHistory)
		history.On("LatestBefore", ctx, 1, 2, date).Return(nil, nil)

		rec, err := NewReconciler(history).Reconcile(ctx, 1, 2, date, 130)
		require.NoError(t, err)
		assert.Equal(t, int64(130), rec.Daily)
	})

	t.Run("NegativeDeltaHookAndClamp", func(t *testing.T) {
		history := new(MockHistory)
		prev := &models.StatRecord{PracticeID: 1, RegionID: 2, Date: day(2025, 4, 9), Cumulative: 200}
		history.On("LatestBefore", ctx, 1, 2, date).Return(prev, nil)

		var seen []int64
		hook := func(rec models.StatRecord, p models.StatRecord) {
			seen = append(seen, rec.Daily)
			assert.Equal(t, int64(200), p.Cumulative)
		}

		rec, err := NewReconciler(history, WithNegativeDeltaHook(hook)).Reconcile(ctx, 1, 2, date, 150)
		require.NoError(t, err)
		assert.Equal(t, int64(-50), rec.Daily)

		rec, err = NewReconciler(history, WithNegativeDeltaHook(hook), WithClampNegative(true)).Reconcile(ctx, 1, 2, date, 150)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.Daily)

		assert.Equal(t, []int64{-50, -50}, seen)
	})

	t.Run("HistoryError", func(t *testing.T) {
		history := new(MockHistory)
		boom := errors.New("connection reset")
		history.On("LatestBefore", ctx, 1, 2, date).Return(nil, boom)

		_, err := NewReconciler(history).Reconcile(ctx, 1, 2, date, 10)
		assert.ErrorIs(t, err, boom)
	})
}

func TestAggregate(t *testing.T) {
	date := day(2025, 4, 24)

	t.Run("SumsRealRegions", func(t *testing.T) {
		records := []models.StatRecord{
			{PracticeID: 1, RegionID: 1, Date: date, Cumulative: 10, Daily: 1},
			{PracticeID: 1, RegionID: 2, Date: date, Cumulative: 20, Daily: 2},
			{PracticeID: 1, RegionID: 3, Date: date, Cumulative: 5, Daily: 0},
			{PracticeID: 1, RegionID: 24, Date: date, Cumulative: 0, Daily: 0},
		}
		total, ok := Aggregate(1, date, records)
		require.True(t, ok)
		assert.Equal(t, models.StatRecord{PracticeID: 1, RegionID: models.TotalRegionID, Date: date, Cumulative: 35, Daily: 3}, total)
	})

	t.Run("IgnoresTotalAndForeignRows", func(t *testing.T) {
		records := []models.StatRecord{
			{PracticeID: 1, RegionID: 1, Date: date, Cumulative: 10, Daily: 1},
			{PracticeID: 1, RegionID: models.TotalRegionID, Date: date, Cumulative: 999, Daily: 999},
			{PracticeID: 1, RegionID: 30, Date: date, Cumulative: 7, Daily: 7},
			{PracticeID: 2, RegionID: 2, Date: date, Cumulative: 7, Daily: 7},
			{PracticeID: 1, RegionID: 2, Date: date.AddDate(0, 0, -1), Cumulative: 7, Daily: 7},
		}
		total, ok := Aggregate(1, date, records)
		require.True(t, ok)
		assert.Equal(t, int64(10), total.Cumulative)
		assert.Equal(t, int64(1), total.Daily)
	})

	t.Run("NoMembers", func(t *testing.T) {
		_, ok := Aggregate(1, date, []models.StatRecord{{PracticeID: 1, RegionID: models.TotalRegionID, Date: date}})
		assert.False(t, ok)
	})
}
