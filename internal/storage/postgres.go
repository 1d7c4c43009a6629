package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aniket1251/opd-token-allocation-engine/internal/capacity"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/doctor"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
)

// Postgres is the production Store, backed by database/sql and lib/pq.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against dsn.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// NextSequence satisfies naming.SequenceSource directly against the pool,
// for callers (the cmd/ wiring) that build a Namer once at startup rather
// than per-transaction. Sequence counters only need to be unique and
// monotonic among themselves, not atomic with the enclosing business
// transaction, so running outside tx here is safe.
func (p *Postgres) NextSequence(ctx context.Context, kind string, scopeKey string) (int64, error) {
	var seq int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO sequences (kind, scope_key, value) VALUES ($1, $2, 1)
		 ON CONFLICT (kind, scope_key) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`,
		kind, scopeKey,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("storage: next sequence: %w", err)
	}
	return seq, nil
}

func (p *Postgres) ListActiveDoctors(ctx context.Context) ([]*doctor.Doctor, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, is_active FROM doctors WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("storage: list active doctors: %w", err)
	}
	defer rows.Close()

	var out []*doctor.Doctor
	for rows.Next() {
		var d doctor.Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive); err != nil {
			return nil, fmt.Errorf("storage: scan doctor: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (p *Postgres) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Commit() error { return t.tx.Commit() }

func (t *pgTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (t *pgTx) GetDoctor(ctx context.Context, doctorID uuid.UUID) (*doctor.Doctor, error) {
	var d doctor.Doctor
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, is_active FROM doctors WHERE id = $1`,
		doctorID,
	).Scan(&d.ID, &d.Name, &d.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get doctor: %w", err)
	}
	return &d, nil
}

func (t *pgTx) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*slot.Slot, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, display_id, doctor_id, date, start_time, end_time,
		        capacity, paid_cap, paid_cap_limited, followup_cap, followup_cap_limited, is_active
		 FROM slots WHERE id = $1 FOR UPDATE`,
		slotID,
	)
	s, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get slot: %w", err)
	}
	return s, nil
}

func (t *pgTx) ListActiveSlotsForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*slot.Slot, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, display_id, doctor_id, date, start_time, end_time,
		        capacity, paid_cap, paid_cap_limited, followup_cap, followup_cap_limited, is_active
		 FROM slots
		 WHERE doctor_id = $1 AND date = $2 AND is_active = true
		 ORDER BY start_time
		 FOR UPDATE`,
		doctorID, date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list slots: %w", err)
	}
	defer rows.Close()

	var out []*slot.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan slot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateSlot(ctx context.Context, s *slot.Slot) error {
	paidN, paidLimited := s.PaidCap.Value()
	fuN, fuLimited := s.FollowUpCap.Value()
	_, err := t.tx.ExecContext(ctx,
		`UPDATE slots SET capacity = $1, paid_cap = $2, paid_cap_limited = $3,
		                  followup_cap = $4, followup_cap_limited = $5, is_active = $6
		 WHERE id = $7`,
		s.Capacity, paidN, paidLimited, fuN, fuLimited, s.IsActive, s.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: update slot: %w", err)
	}
	return nil
}

func (t *pgTx) ListAllocatedTokensForSlot(ctx context.Context, slotID uuid.UUID) ([]*token.Token, error) {
	rows, err := t.tx.QueryContext(ctx,
		tokenSelectColumns+` FROM tokens WHERE slot_id = $1 AND status = 'ALLOCATED' FOR UPDATE`,
		slotID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list allocated tokens: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (t *pgTx) ListWaitingTokensForDoctorDate(ctx context.Context, doctorID uuid.UUID, date civildate.Date) ([]*token.Token, error) {
	rows, err := t.tx.QueryContext(ctx,
		tokenSelectColumns+` FROM tokens
		 WHERE doctor_id = $1 AND date = $2 AND status = 'WAITING'
		 ORDER BY created_at
		 FOR UPDATE`,
		doctorID, date.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list waiting tokens: %w", err)
	}
	defer rows.Close()
	return scanTokens(rows)
}

func (t *pgTx) GetTokenByIdempotencyKey(ctx context.Context, key string) (*token.Token, error) {
	row := t.tx.QueryRowContext(ctx,
		tokenSelectColumns+` FROM tokens WHERE idempotency_key = $1`,
		key,
	)
	tok, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get token by idempotency key: %w", err)
	}
	return tok, nil
}

func (t *pgTx) GetToken(ctx context.Context, tokenID uuid.UUID) (*token.Token, error) {
	row := t.tx.QueryRowContext(ctx,
		tokenSelectColumns+` FROM tokens WHERE id = $1 FOR UPDATE`,
		tokenID,
	)
	tok, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get token: %w", err)
	}
	return tok, nil
}

func (t *pgTx) InsertToken(ctx context.Context, tok *token.Token) error {
	kind, slotID, statusAt, reason := flattenStatus(tok)
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tokens (id, display_id, idempotency_key, doctor_id, date, patient_name, phone, age, notes,
		                      source, priority, status, slot_id, status_at, cancel_reason, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		tok.ID, tok.DisplayID, tok.IdempotencyKey, tok.DoctorID, tok.Date.String(),
		tok.PatientName, tok.Phone, tok.Age, tok.Notes,
		string(tok.Source), int(tok.Priority), string(kind), nullUUID(slotID), statusAt, reason, tok.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: insert token: %w: %v", ErrConflict, err)
		}
		return fmt.Errorf("storage: insert token: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateToken(ctx context.Context, tok *token.Token) error {
	kind, slotID, statusAt, reason := flattenStatus(tok)
	_, err := t.tx.ExecContext(ctx,
		`UPDATE tokens SET status = $1, slot_id = $2, status_at = $3, cancel_reason = $4, priority = $5
		 WHERE id = $6`,
		string(kind), nullUUID(slotID), statusAt, reason, int(tok.Priority), tok.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: update token: %w", err)
	}
	return nil
}

func (t *pgTx) NextSequence(ctx context.Context, kind string, scopeKey string) (int64, error) {
	var seq int64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO sequences (kind, scope_key, value) VALUES ($1, $2, 1)
		 ON CONFLICT (kind, scope_key) DO UPDATE SET value = sequences.value + 1
		 RETURNING value`,
		kind, scopeKey,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("storage: next sequence: %w", err)
	}
	return seq, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(s scanner) (*slot.Slot, error) {
	var out slot.Slot
	var dateStr, startStr, endStr string
	var paidN, fuN int
	var paidLimited, fuLimited bool
	if err := s.Scan(&out.ID, &out.DisplayID, &out.DoctorID, &dateStr, &startStr, &endStr,
		&out.Capacity, &paidN, &paidLimited, &fuN, &fuLimited, &out.IsActive); err != nil {
		return nil, err
	}
	d, err := civildate.ParseDate(dateStr)
	if err != nil {
		return nil, err
	}
	st, err := civildate.ParseClockTime(startStr)
	if err != nil {
		return nil, err
	}
	et, err := civildate.ParseClockTime(endStr)
	if err != nil {
		return nil, err
	}
	out.Date = d
	out.StartTime = st
	out.EndTime = et
	if paidLimited {
		out.PaidCap = capacity.Limit(paidN)
	} else {
		out.PaidCap = capacity.Unlimited()
	}
	if fuLimited {
		out.FollowUpCap = capacity.Limit(fuN)
	} else {
		out.FollowUpCap = capacity.Unlimited()
	}
	return &out, nil
}

const tokenSelectColumns = `SELECT id, display_id, idempotency_key, doctor_id, date, patient_name, phone, age, notes,
	       source, priority, status, slot_id, status_at, cancel_reason, created_at`

func scanToken(s scanner) (*token.Token, error) {
	var out token.Token
	var dateStr, sourceStr, statusStr, reason sql.NullString
	var prio int
	var slotID uuid.NullUUID
	var statusAt sql.NullTime

	if err := s.Scan(&out.ID, &out.DisplayID, &out.IdempotencyKey, &out.DoctorID, &dateStr,
		&out.PatientName, &out.Phone, &out.Age, &out.Notes,
		&sourceStr, &prio, &statusStr, &slotID, &statusAt, &reason, &out.CreatedAt); err != nil {
		return nil, err
	}

	d, err := civildate.ParseDate(dateStr.String)
	if err != nil {
		return nil, err
	}
	out.Date = d
	out.Priority = priorityFromInt(prio)

	src, err := parseSourceLenient(sourceStr.String)
	if err != nil {
		return nil, err
	}
	out.Source = src

	status, err := hydrateStatus(statusStr.String, slotID, statusAt, reason)
	if err != nil {
		return nil, err
	}
	out.Status = status
	return &out, nil
}

func scanTokens(rows *sql.Rows) ([]*token.Token, error) {
	var out []*token.Token
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

// isUniqueViolation detects Postgres error code 23505 (unique_violation),
// raised by the idempotency_key unique index — the authoritative half of
// the two-layer idempotency gate (spec §4.6.1).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
