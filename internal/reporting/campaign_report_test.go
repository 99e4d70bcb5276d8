package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCampaignReport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	day1 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	mock.ExpectQuery("GROUP BY date").
		WithArgs("auction", "win", "win", "auction", "auction", "c1", 7).
		WillReturnRows(sqlmock.NewRows([]string{"date", "won", "confirmed", "spend", "avg_settlement", "avg_second"}).
			AddRow(day1, int64(4), int64(2), 1.0, 0.5, 0.49).
			AddRow(day2, int64(1), int64(1), 0.8, 0.8, 0.79))
	mock.ExpectQuery("GROUP BY ad_id").
		WithArgs("auction", "win", "win", "c1", 7).
		WillReturnRows(sqlmock.NewRows([]string{"ad_id", "won", "confirmed", "spend"}).
			AddRow("ad-a", int64(3), int64(2), 1.3).
			AddRow("ad-b", int64(2), int64(1), 0.5))

	summary, err := GenerateCampaignReport(context.Background(), db, "c1", 7)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, summary.DailyMetrics, 2)
	assert.InDelta(t, 50, summary.DailyMetrics[0].ConfirmRate, 1e-9)

	total := summary.TotalMetrics
	assert.Equal(t, int64(5), total.AuctionsWon)
	assert.Equal(t, int64(3), total.Confirmed)
	assert.InDelta(t, 1.8, total.Spend, 1e-9)
	assert.InDelta(t, (4*0.5+0.8)/5, total.AvgSettlement, 1e-9)
	assert.InDelta(t, 60, total.ConfirmRate, 1e-9)

	require.Len(t, summary.Ads, 2)
	assert.Equal(t, "ad-a", summary.Ads[0].AdID)
}

func TestGenerateCampaignReport_NoDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("GROUP BY date").
		WillReturnRows(sqlmock.NewRows([]string{"date", "won", "confirmed", "spend", "avg_settlement", "avg_second"}))
	mock.ExpectQuery("GROUP BY ad_id").
		WillReturnRows(sqlmock.NewRows([]string{"ad_id", "won", "confirmed", "spend"}))

	summary, err := GenerateCampaignReport(context.Background(), db, "c1", 1)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalMetrics.AuctionsWon)
	assert.Zero(t, summary.TotalMetrics.ConfirmRate)
}

func TestGenerateCampaignReport_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("GROUP BY date").WillReturnError(errors.New("clickhouse down"))

	_, err = GenerateCampaignReport(context.Background(), db, "c1", 7)
	assert.ErrorContains(t, err, "get daily metrics")
}
