package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Transaction{}, &models.TransactionEvent{}, &models.APIClient{}))
	return db
}

func sampleTx(id, key string, attempt int) *domain.Transaction {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Transaction{
		ID: id,
		Request: domain.PaymentRequest{
			Amount: decimal.NewFromInt(50), Currency: "USD", Phone: "+233241234567",
			IdempotencyKey: key, ClientID: "client-1", Description: "consultation deposit",
		},
		State:      domain.StateCreated,
		KeyAttempt: attempt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, sampleTx("tx-1", "key-1", 0)))

	got, err := repo.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateCreated, got.State)
	require.True(t, got.Request.Amount.Equal(decimal.NewFromInt(50)))
	require.Equal(t, "consultation deposit", got.Request.Description)

	_, err = repo.Get(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, repo.Create(ctx, sampleTx("tx-2", "key-1", 0)), ledger.ErrDuplicate)
	require.NoError(t, repo.Create(ctx, sampleTx("tx-3", "key-1", 1)))

	latest, err := repo.FindByIdempotencyKey(ctx, "client-1", "key-1")
	require.NoError(t, err)
	require.Equal(t, "tx-3", latest.ID)
}

func TestRepositoryTransitionIsOptimistic(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, sampleTx("tx-1", "key-1", 0)))

	_, err := repo.Transition(ctx, "tx-1", domain.StateCreated, domain.StateValidated, domain.Change{Source: "initiate"})
	require.NoError(t, err)
	_, err = repo.Transition(ctx, "tx-1", domain.StateValidated, domain.StateResolved, domain.Change{
		ProviderID: "mtn", NormalizedPhone: "+233241234567", Source: "initiate",
	})
	require.NoError(t, err)

	_, err = repo.Transition(ctx, "tx-1", domain.StateValidated, domain.StateRejected, domain.Change{Error: "stale"})
	require.ErrorIs(t, err, domain.ErrConflict)

	got, err := repo.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.StateResolved, got.State)
	require.Empty(t, got.LastError)

	pending, err := repo.Transition(ctx, "tx-1", domain.StateResolved, domain.StatePendingProviderAck, domain.Change{
		ProviderReference: "ref-9", Source: "initiate",
	})
	require.NoError(t, err)
	require.Equal(t, "ref-9", pending.ProviderReference)

	polled, err := repo.Transition(ctx, "tx-1", domain.StatePendingProviderAck, domain.StatePendingProviderAck, domain.Change{
		IncrementAttempts: true, Source: "poll",
	})
	require.NoError(t, err)
	require.Equal(t, 1, polled.AttemptCount)

	byRef, err := repo.FindByProviderReference(ctx, "mtn", "ref-9")
	require.NoError(t, err)
	require.Equal(t, "tx-1", byRef.ID)

	_, err = repo.Transition(ctx, "tx-1", domain.StatePendingProviderAck, domain.StateCreated, domain.Change{})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = repo.Transition(ctx, "ghost", domain.StateCreated, domain.StateValidated, domain.Change{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepositoryHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, sampleTx("tx-1", "key-1", 0)))
	_, err := repo.Transition(ctx, "tx-1", domain.StateCreated, domain.StateRejected, domain.Change{
		Error: "invalid input: amount must be positive", Source: "initiate",
	})
	require.NoError(t, err)

	h, err := repo.History(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, h, 2)
	require.Equal(t, domain.StateCreated, h[0].To)
	require.Equal(t, domain.StateCreated, h[1].From)
	require.Equal(t, domain.StateRejected, h[1].To)
	require.Contains(t, h[1].Error, "amount must be positive")

	_, err = repo.History(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)

	rejected, err := repo.ListByState(ctx, []domain.State{domain.StateRejected}, 0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
}
