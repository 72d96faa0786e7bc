package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/triggerr/core/internal/app/domain/escrow"
	"github.com/triggerr/core/internal/app/domain/policy"
	"github.com/triggerr/core/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestGetPolicyScansTerms(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "policy_number", "user_id", "anonymous_session_id", "provider_id",
		"flight_id", "flight_number", "flight_date", "origin_iata", "destination_iata",
		"coverage_type", "coverage_amount", "premium", "payout_amount",
		"status", "expires_at", "terms", "created_at", "updated_at",
	}).AddRow(
		"p1", "PN-1", "user-1", "", "acme",
		"f1", "UA456", "2025-12-15", "SFO", "ORD",
		"FLIGHT_DELAY", "500.00", "25.00", "250.00",
		"ACTIVE", now.Add(time.Hour), []byte(`{"delayThresholdMinutes":45}`), now, now,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM policy WHERE id = \$1`).WithArgs("p1").WillReturnRows(rows)

	p, err := store.GetPolicy(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if p.Terms.DelayThresholdMinutes != 45 {
		t.Fatalf("terms not decoded: %#v", p.Terms)
	}
	if p.CoverageType != policy.CoverageFlightDelay || p.Status != policy.StatusActive {
		t.Fatalf("unexpected policy: %#v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`(?s)SELECT .* FROM policy WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetPolicy(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionPolicyStatusGuarded(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE policy SET status = \$3, updated_at = \$4`).
		WithArgs("p1", "ACTIVE", "CLAIMED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows([]string{
		"id", "policy_number", "user_id", "anonymous_session_id", "provider_id",
		"flight_id", "flight_number", "flight_date", "origin_iata", "destination_iata",
		"coverage_type", "coverage_amount", "premium", "payout_amount",
		"status", "expires_at", "terms", "created_at", "updated_at",
	}).AddRow(
		"p1", "PN-1", "user-1", "", "acme",
		"f1", "UA456", "2025-12-15", "SFO", "ORD",
		"FLIGHT_DELAY", "500.00", "25.00", "250.00",
		"CLAIMED", now.Add(time.Hour), []byte(`{}`), now, now,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM policy WHERE id = \$1`).WithArgs("p1").WillReturnRows(rows)

	p, err := store.TransitionPolicyStatus(context.Background(), "p1", policy.StatusActive, policy.StatusClaimed)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if p.Status != policy.StatusClaimed {
		t.Fatalf("unexpected status %s", p.Status)
	}
}

func TestTransitionPolicyStatusLostRace(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE policy SET status = \$3, updated_at = \$4`).
		WithArgs("p1", "ACTIVE", "CLAIMED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{
		"id", "policy_number", "user_id", "anonymous_session_id", "provider_id",
		"flight_id", "flight_number", "flight_date", "origin_iata", "destination_iata",
		"coverage_type", "coverage_amount", "premium", "payout_amount",
		"status", "expires_at", "terms", "created_at", "updated_at",
	}).AddRow(
		"p1", "PN-1", "user-1", "", "acme",
		"f1", "UA456", "2025-12-15", "SFO", "ORD",
		"FLIGHT_DELAY", "500.00", "25.00", "250.00",
		"CLAIMED", now.Add(time.Hour), []byte(`{}`), now, now,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM policy WHERE id = \$1`).WithArgs("p1").WillReturnRows(rows)

	_, err := store.TransitionPolicyStatus(context.Background(), "p1", policy.StatusActive, policy.StatusClaimed)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict for lost race, got %v", err)
	}
}

func TestTransitionEscrowStatusIllegal(t *testing.T) {
	store, _ := newMockStore(t)

	// Terminal transitions are rejected before touching the database.
	_, err := store.TransitionEscrowStatus(context.Background(), "e1", escrow.StatusReleased, escrow.StatusActive)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict for terminal escrow, got %v", err)
	}
}

func TestWithinTxCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payout`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(s storage.Store) error {
		_, err := s.CreatePayout(context.Background(), payoutRecordFixture())
		return err
	})
	if err != nil {
		t.Fatalf("within tx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("write failed")
	err := store.WithinTx(context.Background(), func(storage.Store) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
