package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetTicket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTicketRepository(db, zap.NewNop())

	mock.ExpectQuery(`FROM tickets`).
		WithArgs("t-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_id", "status"}).
			AddRow("t-1", "u-1", "e-1", "valid"))
	mock.ExpectQuery(`FROM tickets`).
		WithArgs("t-2").
		WillReturnError(sql.ErrNoRows)

	ticket, err := repo.GetTicket(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "valid", ticket.Status)

	missing, err := repo.GetTicket(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSetTicketStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewTicketRepository(db, zap.NewNop())

	mock.ExpectExec(`UPDATE tickets SET status`).
		WithArgs("t-1", "checked_in").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetTicketStatus(context.Background(), "t-1", "checked_in"))
	require.NoError(t, mock.ExpectationsWereMet())
}
