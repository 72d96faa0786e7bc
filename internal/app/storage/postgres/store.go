// Package postgres implements the storage contracts backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/triggerr/core/internal/app/domain/escrow"
	"github.com/triggerr/core/internal/app/domain/payout"
	"github.com/triggerr/core/internal/app/domain/policy"
	"github.com/triggerr/core/internal/app/storage"
)

// querier abstracts *sql.DB and *sql.Tx so the same statements serve both.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
	q  querier
}

var _ storage.Store = (*Store)(nil)
var _ storage.Transactional = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// WithinTx runs fn inside one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.db == nil {
		return fmt.Errorf("store is not transactional")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- PolicyStore --------------------------------------------------------------

func (s *Store) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	termsJSON, err := p.MarshalTerms()
	if err != nil {
		return policy.Policy{}, fmt.Errorf("marshal terms: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO policy (
			id, policy_number, user_id, anonymous_session_id, provider_id,
			flight_id, flight_number, flight_date, origin_iata, destination_iata,
			coverage_type, coverage_amount, premium, payout_amount,
			status, expires_at, terms, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, p.ID, p.PolicyNumber, nullString(p.UserID), nullString(p.AnonymousSessionID), p.ProviderID,
		p.FlightID, p.FlightNumber, p.FlightDate, p.OriginIATA, p.DestinationIATA,
		string(p.CoverageType), p.CoverageAmount, p.Premium, p.PayoutAmount,
		string(p.Status), p.ExpiresAt, termsJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

const policyColumns = `
	id, policy_number, COALESCE(user_id, ''), COALESCE(anonymous_session_id, ''), provider_id,
	flight_id, flight_number, flight_date, origin_iata, destination_iata,
	coverage_type, coverage_amount, premium, payout_amount,
	status, expires_at, terms, created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (policy.Policy, error) {
	var (
		p     policy.Policy
		terms []byte
	)
	err := row.Scan(
		&p.ID, &p.PolicyNumber, &p.UserID, &p.AnonymousSessionID, &p.ProviderID,
		&p.FlightID, &p.FlightNumber, &p.FlightDate, &p.OriginIATA, &p.DestinationIATA,
		(*string)(&p.CoverageType), &p.CoverageAmount, &p.Premium, &p.PayoutAmount,
		(*string)(&p.Status), &p.ExpiresAt, &terms, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return policy.Policy{}, err
	}
	if err := p.UnmarshalTerms(terms); err != nil {
		return policy.Policy{}, fmt.Errorf("unmarshal terms: %w", err)
	}
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (policy.Policy, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policy WHERE id = $1`, id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, fmt.Errorf("policy %s: %w", id, storage.ErrNotFound)
	}
	return p, err
}

func (s *Store) ListActivePolicies(ctx context.Context, now time.Time, limit int) ([]policy.Policy, error) {
	return s.listPolicies(ctx, `
		SELECT `+policyColumns+` FROM policy
		WHERE status = 'ACTIVE' AND expires_at > $1
		ORDER BY created_at ASC
		LIMIT $2
	`, now, limit)
}

func (s *Store) ListExpiredActivePolicies(ctx context.Context, now time.Time, limit int) ([]policy.Policy, error) {
	return s.listPolicies(ctx, `
		SELECT `+policyColumns+` FROM policy
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY created_at ASC
		LIMIT $2
	`, now, limit)
}

func (s *Store) listPolicies(ctx context.Context, query string, now time.Time, limit int) ([]policy.Policy, error) {
	rows, err := s.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) TransitionPolicyStatus(ctx context.Context, id string, from, to policy.Status) (policy.Policy, error) {
	if !from.CanTransition(to) {
		return policy.Policy{}, fmt.Errorf("policy %s cannot move %s -> %s: %w", id, from, to, storage.ErrConflict)
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE policy SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return policy.Policy{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetPolicy(ctx, id); errors.Is(err, storage.ErrNotFound) {
			return policy.Policy{}, err
		}
		return policy.Policy{}, fmt.Errorf("policy %s not in status %s: %w", id, from, storage.ErrConflict)
	}
	return s.GetPolicy(ctx, id)
}

// --- EscrowStore --------------------------------------------------------------

const escrowColumns = `
	id, blockchain_id, COALESCE(policy_id, ''), COALESCE(user_id, ''), chain,
	escrow_model, status, amount, expires_at, created_at, updated_at`

func scanEscrow(row interface{ Scan(...any) error }) (escrow.Escrow, error) {
	var e escrow.Escrow
	err := row.Scan(
		&e.ID, &e.BlockchainID, &e.PolicyID, &e.UserID, &e.Chain,
		(*string)(&e.EscrowModel), (*string)(&e.Status), &e.Amount, &e.ExpiresAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (s *Store) CreateEscrow(ctx context.Context, e escrow.Escrow) (escrow.Escrow, error) {
	if e.ID == "" {
		return escrow.Escrow{}, fmt.Errorf("escrow id is required")
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO escrow (
			id, blockchain_id, policy_id, user_id, chain,
			escrow_model, status, amount, expires_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.BlockchainID, nullString(e.PolicyID), nullString(e.UserID), e.Chain,
		string(e.EscrowModel), string(e.Status), e.Amount, e.ExpiresAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return escrow.Escrow{}, err
	}
	return e, nil
}

func (s *Store) GetEscrow(ctx context.Context, id string) (escrow.Escrow, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrow WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Escrow{}, fmt.Errorf("escrow %s: %w", id, storage.ErrNotFound)
	}
	return e, err
}

func (s *Store) GetOpenEscrowForPolicy(ctx context.Context, policyID string) (escrow.Escrow, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+escrowColumns+` FROM escrow
		WHERE policy_id = $1 AND status IN ('PENDING', 'ACTIVE')
		ORDER BY created_at ASC
		LIMIT 1
	`, policyID)
	e, err := scanEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return escrow.Escrow{}, fmt.Errorf("open escrow for policy %s: %w", policyID, storage.ErrNotFound)
	}
	return e, err
}

func (s *Store) TransitionEscrowStatus(ctx context.Context, id string, from, to escrow.Status) (escrow.Escrow, error) {
	if !from.CanTransition(to) {
		return escrow.Escrow{}, fmt.Errorf("escrow %s cannot move %s -> %s: %w", id, from, to, storage.ErrConflict)
	}
	result, err := s.q.ExecContext(ctx, `
		UPDATE escrow SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return escrow.Escrow{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetEscrow(ctx, id); errors.Is(err, storage.ErrNotFound) {
			return escrow.Escrow{}, err
		}
		return escrow.Escrow{}, fmt.Errorf("escrow %s not in status %s: %w", id, from, storage.ErrConflict)
	}
	return s.GetEscrow(ctx, id)
}

// --- PayoutStore --------------------------------------------------------------

func (s *Store) CreatePayout(ctx context.Context, rec payout.Record) (payout.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return payout.Record{}, err
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO payout (
			id, policy_id, escrow_id, amount, status, reason,
			tx_hash, error_message, chain, recipient, metadata,
			processed_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, rec.ID, rec.PolicyID, rec.EscrowID, rec.Amount, string(rec.Status), rec.Reason,
		nullString(rec.TxHash), nullString(rec.ErrorMessage), rec.Chain, rec.Recipient, metadataJSON,
		rec.ProcessedAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return payout.Record{}, err
	}
	return rec, nil
}

const payoutColumns = `
	id, policy_id, escrow_id, amount, status, reason,
	COALESCE(tx_hash, ''), COALESCE(error_message, ''), chain, recipient, metadata,
	processed_at, created_at, updated_at`

func scanPayout(row interface{ Scan(...any) error }) (payout.Record, error) {
	var (
		rec      payout.Record
		metadata []byte
	)
	err := row.Scan(
		&rec.ID, &rec.PolicyID, &rec.EscrowID, &rec.Amount, (*string)(&rec.Status), &rec.Reason,
		&rec.TxHash, &rec.ErrorMessage, &rec.Chain, &rec.Recipient, &metadata,
		&rec.ProcessedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return payout.Record{}, err
	}
	if rec.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return payout.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetPayout(ctx context.Context, id string) (payout.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payout WHERE id = $1`, id)
	rec, err := scanPayout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.Record{}, fmt.Errorf("payout %s: %w", id, storage.ErrNotFound)
	}
	return rec, err
}

func (s *Store) ListPayoutsByPolicy(ctx context.Context, policyID string) ([]payout.Record, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+payoutColumns+` FROM payout
		WHERE policy_id = $1
		ORDER BY created_at ASC
	`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payout.Record
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- WalletStore --------------------------------------------------------------

func (s *Store) CreateWallet(ctx context.Context, w payout.Wallet) (payout.Wallet, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO user_wallets (
			id, user_id, address, chain, wallet_type,
			encrypted_secret, kms_key_id, is_primary, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, w.ID, w.UserID, w.Address, w.Chain, w.WalletType,
		w.EncryptedSecret, nullString(w.KMSKeyID), w.IsPrimary, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return payout.Wallet{}, err
	}
	return w, nil
}

func (s *Store) GetPrimaryWallet(ctx context.Context, userID string) (payout.Wallet, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, address, chain, wallet_type,
		       encrypted_secret, COALESCE(kms_key_id, ''), is_primary, created_at, updated_at
		FROM user_wallets
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at ASC
		LIMIT 1
	`, userID)
	var w payout.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.Address, &w.Chain, &w.WalletType,
		&w.EncryptedSecret, &w.KMSKeyID, &w.IsPrimary, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, storage.ErrNotFound)
	}
	return w, err
}
