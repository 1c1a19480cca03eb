package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

func setupMockCheckinDB(t *testing.T) (sqlmock.Sqlmock, *CheckinRepository, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return mock, NewCheckinRepository(db, zap.NewNop()), func() { db.Close() }
}

func TestFindOpen_None(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	mock.ExpectQuery(`checkout_timestamp IS NULL`).
		WithArgs("t-1", "e-1").
		WillReturnError(sql.ErrNoRows)

	rec, err := repo.FindOpen(context.Background(), "t-1", "e-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFindOpen_Found(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	in := time.Now().Add(-30 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "ticket_id", "event_id", "attendee_id", "venue_id", "zone_id",
		"checkin_method", "sensor_id", "location_accuracy", "checkin_timestamp",
	}).AddRow("c-1", "t-1", "e-1", "u-1", "v-1", nil, "qr", nil, 3.5, in)

	mock.ExpectQuery(`FROM smart_checkins`).WithArgs("t-1", "e-1").WillReturnRows(rows)

	rec, err := repo.FindOpen(context.Background(), "t-1", "e-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "c-1", rec.ID)
	assert.Nil(t, rec.ZoneID)
	require.NotNil(t, rec.LocationAccuracy)
	assert.Equal(t, 3.5, *rec.LocationAccuracy)
	assert.Equal(t, in, rec.CheckinTimestamp)
}

func TestInsertCheckin_UniqueViolation(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO smart_checkins`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.InsertCheckin(context.Background(), &models.PresenceRecord{TicketID: "t-1", EventID: "e-1"})
	assert.ErrorIs(t, err, ErrDuplicateOpenCheckin)
}

func TestInsertCheckin_ReturnsID(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO smart_checkins`).
		WithArgs("t-1", "e-1", "u-1", "v-1", nil, "nfc", nil, []byte("{}"), nil, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c-9"))

	id, err := repo.InsertCheckin(context.Background(), &models.PresenceRecord{
		TicketID: "t-1", EventID: "e-1", AttendeeID: "u-1", VenueID: "v-1",
		CheckinMethod: "nfc", CheckinTimestamp: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "c-9", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseCheckin_AlreadyClosed(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	out := time.Now()
	mock.ExpectExec(`UPDATE smart_checkins`).
		WithArgs("c-1", out, 45).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CloseCheckin(context.Background(), "c-1", out, 45)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEventCheckinStats(t *testing.T) {
	mock, repo, done := setupMockCheckinDB(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg"}).AddRow(4, 37.5))

	total, avg, err := repo.EventCheckinStats(context.Background(), "e-1")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 37.5, avg)
}
