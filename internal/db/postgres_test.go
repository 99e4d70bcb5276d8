package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/rtbengine/internal/models"
)

func setupMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &Postgres{DB: sqlDB}, mock
}

func TestLoadCampaigns(t *testing.T) {
	pg, mock := setupMockPostgres(t)

	campaignCols := []string{"id", "name", "status", "campaign_type", "bid_amount", "budget", "total_spent",
		"zone_ids", "target_devices", "target_countries", "target_pages", "advertiser_id", "balance"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM campaigns c JOIN advertisers a")).
		WillReturnRows(sqlmock.NewRows(campaignCols).
			AddRow("c1", "Spring", "active", "cpm", 0.5, 100.0, 10.0, "{zone-1}", "{desktop,tablet}", "{US}", "{}", "adv1", 40.0).
			AddRow("c2", "Paused", "paused", "cpc", 0.2, 50.0, 0.0, "{}", "{}", "{}", "{/home}", "adv2", 5.0))

	mock.ExpectQuery(regexp.QuoteMeta("FROM ads a JOIN campaigns c")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "name", "status", "weight", "html"}).
			AddRow("ad1", "c1", "Banner", "active", 2.0, "<div>1</div>").
			AddRow("ad2", "c1", "Alt", "paused", 1.0, "<div>2</div>").
			AddRow("ad3", "c2", "Text", "active", 1.0, "<p>3</p>").
			AddRow("orphan", "gone", "x", "active", 1.0, ""))

	campaigns, err := pg.LoadCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	c1 := campaigns[0]
	assert.Equal(t, "c1", c1.ID)
	assert.Equal(t, 0.5, c1.BidAmount)
	assert.Equal(t, []string{"zone-1"}, c1.ZoneIDs)
	assert.True(t, c1.TargetDevices.Contains("tablet"))
	assert.True(t, c1.TargetCountries.Contains("US"))
	assert.Empty(t, c1.TargetPages)
	assert.Equal(t, "adv1", c1.Advertiser.ID)
	assert.Equal(t, 40.0, c1.Advertiser.Balance)
	require.Len(t, c1.Ads, 2)
	assert.Equal(t, "ad1", c1.Ads[0].ID)
	assert.Equal(t, 2.0, c1.Ads[0].Weight)

	c2 := campaigns[1]
	assert.Equal(t, models.StatusPaused, c2.Status)
	assert.True(t, c2.TargetPages.Contains("/home"))
	require.Len(t, c2.Ads, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCampaigns_QueryError(t *testing.T) {
	pg, mock := setupMockPostgres(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

	_, err := pg.LoadCampaigns(context.Background())
	assert.ErrorContains(t, err, "query campaigns")
}

func TestIncrementSpend(t *testing.T) {
	updateSQL := regexp.QuoteMeta("UPDATE campaigns SET total_spent = total_spent + $1")
	existsSQL := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)")

	t.Run("within budget", func(t *testing.T) {
		pg, mock := setupMockPostgres(t)
		mock.ExpectQuery(updateSQL).WithArgs(0.31, "c1").
			WillReturnRows(sqlmock.NewRows([]string{"total_spent"}).AddRow(10.31))

		total, err := pg.IncrementSpend(context.Background(), "c1", 0.31)
		require.NoError(t, err)
		assert.Equal(t, 10.31, total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("budget exceeded", func(t *testing.T) {
		pg, mock := setupMockPostgres(t)
		mock.ExpectQuery(updateSQL).WithArgs(5.0, "c1").
			WillReturnRows(sqlmock.NewRows([]string{"total_spent"}))
		mock.ExpectQuery(existsSQL).WithArgs("c1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := pg.IncrementSpend(context.Background(), "c1", 5)
		assert.ErrorIs(t, err, ErrBudgetExceeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown campaign", func(t *testing.T) {
		pg, mock := setupMockPostgres(t)
		mock.ExpectQuery(updateSQL).WithArgs(1.0, "nope").
			WillReturnRows(sqlmock.NewRows([]string{"total_spent"}))
		mock.ExpectQuery(existsSQL).WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := pg.IncrementSpend(context.Background(), "nope", 1)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		pg, mock := setupMockPostgres(t)
		mock.ExpectQuery(updateSQL).WillReturnError(errors.New("deadlock"))

		_, err := pg.IncrementSpend(context.Background(), "c1", 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBudgetExceeded)
	})

	t.Run("negative amount", func(t *testing.T) {
		pg, _ := setupMockPostgres(t)
		_, err := pg.IncrementSpend(context.Background(), "c1", -1)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestUpsertCampaign(t *testing.T) {
	pg, mock := setupMockPostgres(t)
	c := models.Campaign{
		ID:         "c1",
		Name:       "Spring",
		Status:     models.StatusActive,
		Type:       models.CampaignTypeCPM,
		BidAmount:  0.5,
		Budget:     100,
		Advertiser: models.Advertiser{ID: "adv1", Balance: 10},
		Ads: []models.Ad{
			{ID: "ad1", Status: models.StatusActive, Weight: 1},
			{ID: "ad2", Status: models.StatusActive, Weight: 2},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advertisers")).WithArgs("adv1", 10.0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO campaigns")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ads")).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ads")).WithArgs("ad1", "c1", "", models.StatusActive, 1.0, "", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ads")).WithArgs("ad2", "c1", "", models.StatusActive, 2.0, "", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, pg.UpsertCampaign(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCampaign_RejectsInvalid(t *testing.T) {
	pg, _ := setupMockPostgres(t)
	err := pg.UpsertCampaign(context.Background(), models.Campaign{ID: "c1", BidAmount: -1})
	assert.ErrorIs(t, err, models.ErrInvalidCampaign)
}

func TestUpsertCampaign_RollsBackOnError(t *testing.T) {
	pg, mock := setupMockPostgres(t)
	c := models.Campaign{ID: "c1", Status: models.StatusActive, BidAmount: 1, Budget: 1, Advertiser: models.Advertiser{ID: "a"}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advertisers")).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	assert.Error(t, pg.UpsertCampaign(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}
