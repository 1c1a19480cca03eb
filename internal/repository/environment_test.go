package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

func setupMockEnvironmentDB(t *testing.T) (sqlmock.Sqlmock, *EnvironmentRepository, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return mock, NewEnvironmentRepository(db, zap.NewNop()), func() { db.Close() }
}

func TestInsertObservation_SparseColumns(t *testing.T) {
	mock, repo, done := setupMockEnvironmentDB(t)
	defer done()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	zone := "z-1"
	temp := 21.5
	obs := &models.EnvironmentalObservation{
		VenueID: "v-1", ZoneID: &zone, SensorID: "s-1", Temperature: &temp, RecordedAt: ts,
	}

	// 只有温度列有值，其它环境列写 NULL
	mock.ExpectExec(`INSERT INTO environmental_data`).
		WithArgs("v-1", "z-1", "s-1", 21.5, nil, nil, nil, nil, nil, nil, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertObservation(context.Background(), obs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertObservation_Error(t *testing.T) {
	mock, repo, done := setupMockEnvironmentDB(t)
	defer done()

	mock.ExpectExec(`INSERT INTO environmental_data`).WillReturnError(errors.New("disk full"))

	err := repo.InsertObservation(context.Background(), &models.EnvironmentalObservation{VenueID: "v-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert environmental data")
}

func TestListSince_JoinsZoneAndSensor(t *testing.T) {
	mock, repo, done := setupMockEnvironmentDB(t)
	defer done()

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	later := since.Add(2 * time.Hour)
	earlier := since.Add(time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "venue_id", "zone_id", "sensor_id",
		"temperature", "humidity", "co2_level", "voc_level",
		"noise_level", "air_pressure", "light_level", "recorded_at",
		"name", "sensor_type",
	}).
		AddRow(2, "v-1", "z-1", "s-1", nil, 45.0, nil, nil, nil, nil, nil, later, "Main Hall", "environmental").
		AddRow(1, "v-1", nil, "s-2", 22.0, nil, 800.0, nil, nil, nil, nil, earlier, nil, nil)

	mock.ExpectQuery(`FROM environmental_data d\s+LEFT JOIN venue_zones z`).
		WithArgs("v-1", since).
		WillReturnRows(rows)

	result, err := repo.ListSince(context.Background(), "v-1", since)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, int64(2), result[0].ID)
	require.NotNil(t, result[0].ZoneName)
	assert.Equal(t, "Main Hall", *result[0].ZoneName)
	assert.Nil(t, result[0].Temperature)
	require.NotNil(t, result[0].Humidity)
	assert.Equal(t, 45.0, *result[0].Humidity)

	assert.Nil(t, result[1].ZoneID)
	assert.Nil(t, result[1].SensorType)
	require.NotNil(t, result[1].CO2Level)
	assert.Equal(t, 800.0, *result[1].CO2Level)
	require.NoError(t, mock.ExpectationsWereMet())
}
