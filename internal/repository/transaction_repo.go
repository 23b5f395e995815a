package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"momopay/internal/domain"
	"momopay/internal/ledger"
	"momopay/internal/models"
)

// TransactionRepository is the GORM-backed ledger. Each transition updates the current
// row and appends a TransactionEvent inside one database transaction.
type TransactionRepository struct {
	db *gorm.DB
}

var _ ledger.Ledger = (*TransactionRepository)(nil)

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	row := toRow(t)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Transaction{}).
			Where("id = ? OR (client_id = ? AND idempotency_key = ? AND key_attempt = ?)",
				row.ID, row.ClientID, row.IdempotencyKey, row.KeyAttempt).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicate, row.ID)
		}
		if err := tx.Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ledger.ErrDuplicate, row.ID)
			}
			return err
		}
		return tx.Create(&models.TransactionEvent{
			TransactionID: row.ID,
			ToState:       row.State,
			Source:        "create",
			CreatedAt:     row.CreatedAt,
		}).Error
	})
}

func (r *TransactionRepository) Transition(ctx context.Context, id string, from, to domain.State, change domain.Change) (*domain.Transaction, error) {
	if err := ledger.CheckTransition(from, to); err != nil {
		return nil, err
	}
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	updates := map[string]interface{}{
		"state":      string(to),
		"updated_at": change.At,
	}
	if change.ProviderID != "" {
		updates["provider_id"] = change.ProviderID
	}
	if change.NormalizedPhone != "" {
		updates["normalized_phone"] = change.NormalizedPhone
	}
	if change.ProviderReference != "" {
		updates["provider_reference"] = change.ProviderReference
	}
	if change.Error != "" {
		updates["last_error"] = change.Error
	}
	if change.RawResponse != "" {
		updates["raw_response"] = change.RawResponse
	}
	if change.IncrementAttempts {
		updates["attempt_count"] = gorm.Expr("attempt_count + 1")
	}
	if change.CancelRequested {
		updates["cancel_requested"] = true
	}

	var out models.Transaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND state = ?", id, string(from)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cur models.Transaction
			if err := tx.Select("id", "state").Where("id = ?", id).First(&cur).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
				}
				return err
			}
			return &ledger.TransitionError{ID: id, From: from, To: to, Current: domain.State(cur.State), Err: domain.ErrConflict}
		}
		ev := &models.TransactionEvent{
			TransactionID: id,
			FromState:     string(from),
			ToState:       string(to),
			Source:        change.Source,
			Error:         change.Error,
			RawResponse:   change.RawResponse,
			CreatedAt:     change.At,
		}
		if err := tx.Create(ev).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomain(&out), nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var row models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "transaction "+id)
	}
	return toDomain(&row), nil
}

func (r *TransactionRepository) FindByIdempotencyKey(ctx context.Context, clientID, key string) (*domain.Transaction, error) {
	var row models.Transaction
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND idempotency_key = ?", clientID, key).
		Order("key_attempt DESC").
		First(&row).Error
	if err != nil {
		return nil, notFound(err, "idempotency key "+key)
	}
	return toDomain(&row), nil
}

func (r *TransactionRepository) FindByProviderReference(ctx context.Context, providerID, reference string) (*domain.Transaction, error) {
	var row models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND provider_reference = ?", providerID, reference).
		First(&row).Error
	if err != nil {
		return nil, notFound(err, "provider reference "+providerID+"/"+reference)
	}
	return toDomain(&row), nil
}

func (r *TransactionRepository) ListPending(ctx context.Context, olderThan time.Time) ([]*domain.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("state = ? AND created_at <= ?", string(domain.StatePendingProviderAck), olderThan).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

func (r *TransactionRepository) ListByState(ctx context.Context, states []domain.State, limit int) ([]*domain.Transaction, error) {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	q := r.db.WithContext(ctx).Where("state IN ?", names).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Transaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

func (r *TransactionRepository) History(ctx context.Context, id string) ([]domain.TransitionRecord, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	var events []models.TransactionEvent
	err := r.db.WithContext(ctx).Where("transaction_id = ?", id).Order("id ASC").Find(&events).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.TransitionRecord, 0, len(events))
	for _, e := range events {
		out = append(out, domain.TransitionRecord{
			TransactionID: e.TransactionID,
			From:          domain.State(e.FromState),
			To:            domain.State(e.ToState),
			Source:        e.Source,
			Error:         e.Error,
			RawResponse:   e.RawResponse,
			At:            e.CreatedAt,
		})
	}
	return out, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

func toRow(t *domain.Transaction) *models.Transaction {
	return &models.Transaction{
		ID:                t.ID,
		ClientID:          t.Request.ClientID,
		IdempotencyKey:    t.Request.IdempotencyKey,
		KeyAttempt:        t.KeyAttempt,
		RetryOf:           t.RetryOf,
		Amount:            t.Request.Amount,
		Currency:          t.Request.Currency,
		Phone:             t.Request.Phone,
		ProviderHint:      t.Request.ProviderHint,
		CountryHint:       t.Request.CountryHint,
		Description:       t.Request.Description,
		CallbackURL:       t.Request.CallbackURL,
		NotifyToken:       t.Request.NotifyToken,
		ProviderID:        t.ProviderID,
		NormalizedPhone:   t.NormalizedPhone,
		ProviderReference: t.ProviderReference,
		State:             string(t.State),
		LastError:         t.LastError,
		RawResponse:       t.RawResponse,
		AttemptCount:      t.AttemptCount,
		CancelRequested:   t.CancelRequested,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func toDomain(row *models.Transaction) *domain.Transaction {
	return &domain.Transaction{
		ID: row.ID,
		Request: domain.PaymentRequest{
			Amount:         row.Amount,
			Currency:       row.Currency,
			Phone:          row.Phone,
			ProviderHint:   row.ProviderHint,
			CountryHint:    row.CountryHint,
			Description:    row.Description,
			IdempotencyKey: row.IdempotencyKey,
			ClientID:       row.ClientID,
			CallbackURL:    row.CallbackURL,
			NotifyToken:    row.NotifyToken,
		},
		ProviderID:        row.ProviderID,
		NormalizedPhone:   row.NormalizedPhone,
		State:             domain.State(row.State),
		ProviderReference: row.ProviderReference,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		LastError:         row.LastError,
		AttemptCount:      row.AttemptCount,
		CancelRequested:   row.CancelRequested,
		RawResponse:       row.RawResponse,
		KeyAttempt:        row.KeyAttempt,
		RetryOf:           row.RetryOf,
	}
}

func toDomainList(rows []models.Transaction) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, toDomain(&rows[i]))
	}
	return out
}
