package payment_repo

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"

	"orderpay/internal/domain"
	"orderpay/internal/infrastructure/database/databasetest"
)

func TestOrderLookups_MalformedIDIsNotFound(t *testing.T) {
	db := databasetest.FailingDB(t, &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})
	repo := NewPaymentRepository()

	if _, err := repo.GetOrderIDByPaymentTx(context.Background(), db, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOrderIDByPaymentTx: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetOrderIDByInstallmentTx(context.Background(), db, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetOrderIDByInstallmentTx: expected ErrNotFound, got %v", err)
	}
}
