package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chipin/walletops/service/metrics"
)

// Store is the audit ledger. Every balance verification, sponsored
// transfer and rent reclamation is written here so operators can
// reconcile on-chain state against what the service believes it did.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// Metrics may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDBOperation(operation, status)
}

// BalanceSnapshot is one persisted verification result.
type BalanceSnapshot struct {
	ID           int64
	Owner        string
	TokenAccount string
	Mint         string
	State        string
	UIAmount     float64
	RawAmount    int64
	Consistent   bool
	CheckCount   int32
	CheckedAt    time.Time
	CreatedAt    time.Time
}

// CreateBalanceSnapshotParams contains the parameters for recording a verification.
type CreateBalanceSnapshotParams struct {
	Owner        string
	TokenAccount string
	Mint         string
	State        string
	UIAmount     float64
	RawAmount    int64
	Consistent   bool
	CheckCount   int32
	CheckedAt    time.Time
}

// CreateBalanceSnapshot records a verification result.
func (s *Store) CreateBalanceSnapshot(ctx context.Context, params CreateBalanceSnapshotParams) (*BalanceSnapshot, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO balance_snapshots
			(owner_address, token_account, mint, state, ui_amount, raw_amount, consistent, check_count, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, owner_address, token_account, mint, state, ui_amount, raw_amount, consistent, check_count, checked_at, created_at`,
		params.Owner, params.TokenAccount, params.Mint, params.State,
		params.UIAmount, params.RawAmount, params.Consistent, params.CheckCount,
		pgtype.Timestamptz{Time: params.CheckedAt, Valid: true},
	)
	snapshot, err := scanSnapshot(row)
	s.observe("create_balance_snapshot", "balance_snapshots", start, err)
	return snapshot, err
}

// ListBalanceSnapshots retrieves the most recent snapshots for a wallet,
// newest first.
func (s *Store) ListBalanceSnapshots(ctx context.Context, owner string, limit int32) ([]*BalanceSnapshot, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_address, token_account, mint, state, ui_amount, raw_amount, consistent, check_count, checked_at, created_at
		FROM balance_snapshots
		WHERE owner_address = $1
		ORDER BY checked_at DESC
		LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		s.observe("list_balance_snapshots", "balance_snapshots", start, err)
		return nil, err
	}
	defer rows.Close()

	var snapshots []*BalanceSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			s.observe("list_balance_snapshots", "balance_snapshots", start, err)
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	s.observe("list_balance_snapshots", "balance_snapshots", start, rows.Err())
	return snapshots, rows.Err()
}

// Transfer represents a persisted sponsored transfer.
type Transfer struct {
	ID          int64
	Signature   string
	FromOwner   string
	ToOwner     string
	Mint        string
	RawAmount   int64
	Memo        *string
	FeeLamports int64
	CreatedAt   time.Time
}

// CreateTransferParams contains the parameters for recording a transfer.
type CreateTransferParams struct {
	Signature   string
	FromOwner   string
	ToOwner     string
	Mint        string
	RawAmount   int64
	Memo        *string
	FeeLamports int64
}

// CreateTransfer records a submitted sponsored transfer.
func (s *Store) CreateTransfer(ctx context.Context, params CreateTransferParams) (*Transfer, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transfers
			(signature, from_owner, to_owner, mint, raw_amount, memo, fee_lamports)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, signature, from_owner, to_owner, mint, raw_amount, memo, fee_lamports, created_at`,
		params.Signature, params.FromOwner, params.ToOwner, params.Mint,
		params.RawAmount, pgtextFromStringPtr(params.Memo), params.FeeLamports,
	)
	transfer, err := scanTransfer(row)
	s.observe("create_transfer", "transfers", start, err)
	return transfer, err
}

// GetTransfer retrieves a transfer by its signature.
func (s *Store) GetTransfer(ctx context.Context, signature string) (*Transfer, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, signature, from_owner, to_owner, mint, raw_amount, memo, fee_lamports, created_at
		FROM transfers
		WHERE signature = $1`,
		signature,
	)
	transfer, err := scanTransfer(row)
	s.observe("get_transfer", "transfers", start, err)
	return transfer, err
}

// ListTransfersByOwner retrieves transfers sent by a wallet, newest first.
func (s *Store) ListTransfersByOwner(ctx context.Context, fromOwner string, limit, offset int32) ([]*Transfer, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, signature, from_owner, to_owner, mint, raw_amount, memo, fee_lamports, created_at
		FROM transfers
		WHERE from_owner = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		fromOwner, limit, offset,
	)
	if err != nil {
		s.observe("list_transfers_by_owner", "transfers", start, err)
		return nil, err
	}
	defer rows.Close()

	var transfers []*Transfer
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			s.observe("list_transfers_by_owner", "transfers", start, err)
			return nil, err
		}
		transfers = append(transfers, transfer)
	}
	s.observe("list_transfers_by_owner", "transfers", start, rows.Err())
	return transfers, rows.Err()
}

// SweepReport summarizes one reclamation batch run.
type SweepReport struct {
	ID             int64
	Processed      int32
	Succeeded      int32
	Burned         int32
	Mismatched     int32
	Errored        int32
	TotalRecovered int64
	Halted         bool
	HaltReason     *string
	StartedAt      time.Time
	FinishedAt     time.Time
	CreatedAt      time.Time
}

// CreateSweepReportParams contains the parameters for recording a batch run.
type CreateSweepReportParams struct {
	Processed      int32
	Succeeded      int32
	Burned         int32
	Mismatched     int32
	Errored        int32
	TotalRecovered int64
	Halted         bool
	HaltReason     *string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// CreateSweepReport records the outcome of a reclamation batch.
func (s *Store) CreateSweepReport(ctx context.Context, params CreateSweepReportParams) (*SweepReport, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sweep_reports
			(processed, succeeded, burned, mismatched, errored, total_recovered, halted, halt_reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, processed, succeeded, burned, mismatched, errored, total_recovered, halted, halt_reason, started_at, finished_at, created_at`,
		params.Processed, params.Succeeded, params.Burned, params.Mismatched,
		params.Errored, params.TotalRecovered, params.Halted,
		pgtextFromStringPtr(params.HaltReason),
		pgtype.Timestamptz{Time: params.StartedAt, Valid: true},
		pgtype.Timestamptz{Time: params.FinishedAt, Valid: true},
	)
	report, err := scanSweepReport(row)
	s.observe("create_sweep_report", "sweep_reports", start, err)
	return report, err
}

// GetSweepReport retrieves one batch run by id.
func (s *Store) GetSweepReport(ctx context.Context, id int64) (*SweepReport, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, processed, succeeded, burned, mismatched, errored, total_recovered, halted, halt_reason, started_at, finished_at, created_at
		FROM sweep_reports
		WHERE id = $1`,
		id,
	)
	report, err := scanSweepReport(row)
	s.observe("get_sweep_report", "sweep_reports", start, err)
	return report, err
}

// ListSweepReports retrieves recent batch runs, newest first.
func (s *Store) ListSweepReports(ctx context.Context, limit int32) ([]*SweepReport, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, processed, succeeded, burned, mismatched, errored, total_recovered, halted, halt_reason, started_at, finished_at, created_at
		FROM sweep_reports
		ORDER BY started_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		s.observe("list_sweep_reports", "sweep_reports", start, err)
		return nil, err
	}
	defer rows.Close()

	var reports []*SweepReport
	for rows.Next() {
		report, err := scanSweepReport(rows)
		if err != nil {
			s.observe("list_sweep_reports", "sweep_reports", start, err)
			return nil, err
		}
		reports = append(reports, report)
	}
	s.observe("list_sweep_reports", "sweep_reports", start, rows.Err())
	return reports, rows.Err()
}

// Reclamation represents one wallet's outcome within a sweep.
type Reclamation struct {
	ID                int64
	SweepReportID     *int64
	Owner             string
	TokenAccount      string
	Status            string
	Reason            *string
	LamportsRecovered int64
	Signature         *string
	ErrorText         *string
	CreatedAt         time.Time
}

// CreateReclamationParams contains the parameters for recording one wallet's outcome.
type CreateReclamationParams struct {
	SweepReportID     *int64
	Owner             string
	TokenAccount      string
	Status            string
	Reason            *string
	LamportsRecovered int64
	Signature         *string
	ErrorText         *string
}

// CreateReclamation records one wallet's reclamation outcome.
func (s *Store) CreateReclamation(ctx context.Context, params CreateReclamationParams) (*Reclamation, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reclamations
			(sweep_report_id, owner_address, token_account, status, reason, lamports_recovered, signature, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, sweep_report_id, owner_address, token_account, status, reason, lamports_recovered, signature, error_text, created_at`,
		pgint8FromInt64Ptr(params.SweepReportID), params.Owner, params.TokenAccount,
		params.Status, pgtextFromStringPtr(params.Reason), params.LamportsRecovered,
		pgtextFromStringPtr(params.Signature), pgtextFromStringPtr(params.ErrorText),
	)
	rec, err := scanReclamation(row)
	s.observe("create_reclamation", "reclamations", start, err)
	return rec, err
}

// ListReclamationsByOwner retrieves a wallet's reclamation history, newest first.
func (s *Store) ListReclamationsByOwner(ctx context.Context, owner string, limit int32) ([]*Reclamation, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, sweep_report_id, owner_address, token_account, status, reason, lamports_recovered, signature, error_text, created_at
		FROM reclamations
		WHERE owner_address = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		s.observe("list_reclamations_by_owner", "reclamations", start, err)
		return nil, err
	}
	defer rows.Close()

	var recs []*Reclamation
	for rows.Next() {
		rec, err := scanReclamation(rows)
		if err != nil {
			s.observe("list_reclamations_by_owner", "reclamations", start, err)
			return nil, err
		}
		recs = append(recs, rec)
	}
	s.observe("list_reclamations_by_owner", "reclamations", start, rows.Err())
	return recs, rows.Err()
}

// ListReclamationsBySweep retrieves every wallet outcome within one sweep.
func (s *Store) ListReclamationsBySweep(ctx context.Context, sweepReportID int64) ([]*Reclamation, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT id, sweep_report_id, owner_address, token_account, status, reason, lamports_recovered, signature, error_text, created_at
		FROM reclamations
		WHERE sweep_report_id = $1
		ORDER BY id`,
		sweepReportID,
	)
	if err != nil {
		s.observe("list_reclamations_by_sweep", "reclamations", start, err)
		return nil, err
	}
	defer rows.Close()

	var recs []*Reclamation
	for rows.Next() {
		rec, err := scanReclamation(rows)
		if err != nil {
			s.observe("list_reclamations_by_sweep", "reclamations", start, err)
			return nil, err
		}
		recs = append(recs, rec)
	}
	s.observe("list_reclamations_by_sweep", "reclamations", start, rows.Err())
	return recs, rows.Err()
}

// TotalLamportsRecovered sums the rent reclaimed since a given time.
func (s *Store) TotalLamportsRecovered(ctx context.Context, since time.Time) (int64, error) {
	start := time.Now()
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(lamports_recovered), 0)
		FROM reclamations
		WHERE status = 'closed' AND created_at >= $1`,
		pgtype.Timestamptz{Time: since, Valid: true},
	).Scan(&total)
	s.observe("total_lamports_recovered", "reclamations", start, err)
	return total, err
}

// FirstSeenAt returns the time of the owner's earliest balance
// snapshot, or nil if the owner has never been verified.
func (s *Store) FirstSeenAt(ctx context.Context, owner string) (*time.Time, error) {
	start := time.Now()
	var earliest pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, `
		SELECT MIN(checked_at)
		FROM balance_snapshots
		WHERE owner_address = $1`,
		owner,
	).Scan(&earliest)
	s.observe("first_seen_at", "balance_snapshots", start, err)
	if err != nil {
		return nil, err
	}
	if !earliest.Valid {
		return nil, nil
	}
	t := earliest.Time
	return &t, nil
}

// Row scanning helpers. pgx.Row and pgx.Rows share the Scan signature.

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (*BalanceSnapshot, error) {
	var s BalanceSnapshot
	var checkedAt, createdAt pgtype.Timestamptz
	err := row.Scan(&s.ID, &s.Owner, &s.TokenAccount, &s.Mint, &s.State,
		&s.UIAmount, &s.RawAmount, &s.Consistent, &s.CheckCount, &checkedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	s.CheckedAt = checkedAt.Time
	s.CreatedAt = createdAt.Time
	return &s, nil
}

func scanTransfer(row scannable) (*Transfer, error) {
	var t Transfer
	var memo pgtype.Text
	var createdAt pgtype.Timestamptz
	err := row.Scan(&t.ID, &t.Signature, &t.FromOwner, &t.ToOwner, &t.Mint,
		&t.RawAmount, &memo, &t.FeeLamports, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Memo = stringPtrFromPgtext(memo)
	t.CreatedAt = createdAt.Time
	return &t, nil
}

func scanSweepReport(row scannable) (*SweepReport, error) {
	var r SweepReport
	var haltReason pgtype.Text
	var startedAt, finishedAt, createdAt pgtype.Timestamptz
	err := row.Scan(&r.ID, &r.Processed, &r.Succeeded, &r.Burned, &r.Mismatched,
		&r.Errored, &r.TotalRecovered, &r.Halted, &haltReason, &startedAt, &finishedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	r.HaltReason = stringPtrFromPgtext(haltReason)
	r.StartedAt = startedAt.Time
	r.FinishedAt = finishedAt.Time
	r.CreatedAt = createdAt.Time
	return &r, nil
}

func scanReclamation(row scannable) (*Reclamation, error) {
	var r Reclamation
	var sweepID pgtype.Int8
	var reason, signature, errText pgtype.Text
	var createdAt pgtype.Timestamptz
	err := row.Scan(&r.ID, &sweepID, &r.Owner, &r.TokenAccount, &r.Status,
		&reason, &r.LamportsRecovered, &signature, &errText, &createdAt)
	if err != nil {
		return nil, err
	}
	if sweepID.Valid {
		r.SweepReportID = &sweepID.Int64
	}
	r.Reason = stringPtrFromPgtext(reason)
	r.Signature = stringPtrFromPgtext(signature)
	r.ErrorText = stringPtrFromPgtext(errText)
	r.CreatedAt = createdAt.Time
	return &r, nil
}

// Helper functions to convert between pgx types and domain types

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func pgint8FromInt64Ptr(n *int64) pgtype.Int8 {
	if n == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *n, Valid: true}
}

// ErrNoRows is re-exported so callers don't import pgx directly.
var ErrNoRows = pgx.ErrNoRows
