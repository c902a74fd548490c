package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyRepo_CreateAndGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCompanyRepo(mock)
	c := &domain.Company{ID: 42, Name: "Roam Co", CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}

	mock.ExpectExec("INSERT INTO companies .+ ON CONFLICT").
		WithArgs(c.ID, c.Name, c.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, name, created_at FROM companies WHERE id").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).AddRow(c.ID, c.Name, c.CreatedAt))

	require.NoError(t, repo.Create(context.Background(), c))
	result, err := repo.GetByID(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Roam Co", result.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompanyRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCompanyRepo(mock)

	mock.ExpectQuery("SELECT id, name, created_at FROM companies WHERE id").
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}))

	result, err := repo.GetByID(context.Background(), 9)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Actor:        "ops@platform",
		Action:       domain.AuditActionRebalance,
		ResourceType: "wallet",
		Details:      `{"updated":1}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.Actor, "REBALANCE", "wallet", "", `{"updated":1}`, "10.0.0.1", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewHealthCheck(mock)
	assert.Equal(t, "postgresql", h.Name())

	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	assert.NoError(t, h.Ping(context.Background()))

	mock.ExpectExec("SELECT 1").WillReturnError(fmt.Errorf("connection refused"))
	assert.Error(t, h.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS companies").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, ApplySchema(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactor_Begin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := NewTransactor(mock).Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
