package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"momopay/internal/domain"
	"momopay/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	folder, publicID string
	body             []byte
}

func (f *fakeUploader) UploadRaw(_ context.Context, r io.Reader, folder, publicID string) (string, error) {
	f.folder, f.publicID = folder, publicID
	f.body, _ = io.ReadAll(r)
	return "https://res.cloudinary.com/demo/raw/upload/" + publicID, nil
}

func seed(t *testing.T, l ledger.Ledger, id, client string, path ...domain.State) {
	t.Helper()
	ctx := context.Background()
	tx := &domain.Transaction{
		ID:    id,
		State: domain.StateCreated,
		Request: domain.PaymentRequest{
			ClientID: client, IdempotencyKey: id, Amount: decimal.RequireFromString("12.50"), Currency: "GHS", Phone: "+233241234567",
		},
		NormalizedPhone: "+233241234567",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, l.Create(ctx, tx))
	from := domain.StateCreated
	for _, to := range path {
		change := domain.Change{}
		if to == domain.StatePendingProviderAck {
			change.ProviderReference = "ref-" + id
		}
		if to == domain.StateTimedOut || to == domain.StateError {
			change.Error = "unknown outcome"
		}
		_, err := l.Transition(ctx, id, from, to, change)
		require.NoError(t, err)
		from = to
	}
}

func TestReportListsOnlyAmbiguousOwnTransactions(t *testing.T) {
	l := ledger.NewMemory()
	seed(t, l, "t-timeout", "m1", domain.StateValidated, domain.StateResolved, domain.StatePendingProviderAck, domain.StateTimedOut)
	seed(t, l, "t-error", "m1", domain.StateError)
	seed(t, l, "t-ok", "m1", domain.StateValidated, domain.StateResolved, domain.StatePendingProviderAck, domain.StateSucceeded)
	seed(t, l, "t-other", "m2", domain.StateError)

	svc := New(l, nil, "reports")
	rep, err := svc.Report(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, 2, rep.Count)
	ids := map[string]bool{}
	for _, it := range rep.Items {
		ids[it.TransactionID] = true
		require.Equal(t, "****4567", it.Phone)
		require.Equal(t, "12.5", it.Amount)
	}
	require.True(t, ids["t-timeout"])
	require.True(t, ids["t-error"])

	_, err = svc.Export(context.Background(), "m1")
	require.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestExportUploadsJSONReport(t *testing.T) {
	l := ledger.NewMemory()
	seed(t, l, "t-error", "m1", domain.StateError)
	up := &fakeUploader{}
	svc := New(l, up, "reports")
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	exp, err := svc.Export(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, 1, exp.Count)
	require.Equal(t, "reports", up.folder)
	require.Equal(t, "reconciliation-m1-20260301T120000Z.json", up.publicID)
	require.Contains(t, exp.URL, up.publicID)

	var rep Report
	require.NoError(t, json.Unmarshal(up.body, &rep))
	require.Equal(t, "t-error", rep.Items[0].TransactionID)
	require.Equal(t, domain.StateError, rep.Items[0].State)
}
