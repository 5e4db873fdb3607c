// Package sqlite provides a single-file referral store for one-instance
// deployments that do not run Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nrrp.app/referrals/core/db/migrations"
	"nrrp.app/referrals/internal/model"
	"nrrp.app/referrals/internal/store"
)

const referralColumns = `invitee_id, inviter_id, joined_at, status, invite_code,
	inviter_name, invitee_name, resolved_at, created_at, updated_at`

// Timestamps are stored as Unix microseconds, the precision Postgres keeps.
func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// Store implements store.ReferralStore on SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.ReferralStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection keeps read-modify-write
	// sequences from interleaving.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := migrations.Up(ctx, sqlDB, migrations.DialectSQLite); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, inviteeID string) (*model.Referral, error) {
	return getReferral(ctx, s.sqlDB, inviteeID)
}

func (s *Store) InsertIfAbsent(ctx context.Context, ref *model.Referral) (*model.Referral, bool, error) {
	var (
		stored  *model.Referral
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := toMicros(s.now())
		res, err := tx.ExecContext(ctx, `
			INSERT INTO referrals (invitee_id, inviter_id, joined_at, status, invite_code,
				inviter_name, invitee_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(invitee_id) DO NOTHING`,
			ref.InviteeID, ref.InviterID, toMicros(ref.JoinedAt), string(ref.Status),
			ref.InviteCode, ref.InviterName, ref.InviteeName, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert referral: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert referral rows affected: %w", err)
		}
		created = affected == 1

		stored, err = getReferral(ctx, tx, ref.InviteeID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, inviteeID string, from, to model.ReferralStatus, at time.Time) (*model.Referral, bool, error) {
	var (
		current *model.Referral
		swapped bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE referrals SET status = ?, resolved_at = ?, updated_at = ?
			WHERE invitee_id = ? AND status = ?`,
			string(to), toMicros(at), toMicros(s.now()), inviteeID, string(from),
		)
		if err != nil {
			return fmt.Errorf("update referral status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update referral rows affected: %w", err)
		}
		swapped = affected == 1

		current, err = getReferral(ctx, tx, inviteeID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return current, swapped, nil
}

func (s *Store) ListByInviter(ctx context.Context, inviterID string, page store.Page) ([]model.Referral, error) {
	return s.list(ctx, `inviter_id = ?`, inviterID, page)
}

func (s *Store) ListByStatus(ctx context.Context, status model.ReferralStatus, page store.Page) ([]model.Referral, error) {
	return s.list(ctx, `status = ?`, string(status), page)
}

func (s *Store) Delete(ctx context.Context, inviteeID string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM referrals WHERE invitee_id = ?`, inviteeID)
	if err != nil {
		return fmt.Errorf("delete referral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete referral rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) list(ctx context.Context, filter string, arg string, page store.Page) ([]model.Referral, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+referralColumns+` FROM referrals
		WHERE `+filter+` AND invitee_id > ?
		ORDER BY invitee_id
		LIMIT ?`,
		arg, page.After, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	refs := []model.Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate referrals: %w", err)
	}
	return refs, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getReferral(ctx context.Context, q queryer, inviteeID string) (*model.Referral, error) {
	row := q.QueryRowContext(ctx, `SELECT `+referralColumns+` FROM referrals WHERE invitee_id = ?`, inviteeID)
	ref, err := scanReferral(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return ref, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReferral(row scanner) (*model.Referral, error) {
	var (
		ref        model.Referral
		status     string
		joinedAt   int64
		resolvedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
		inviterID  sql.NullString
		inviteCode sql.NullString
		inviterNm  sql.NullString
		inviteeNm  sql.NullString
	)
	if err := row.Scan(
		&ref.InviteeID,
		&inviterID,
		&joinedAt,
		&status,
		&inviteCode,
		&inviterNm,
		&inviteeNm,
		&resolvedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan referral: %w", err)
	}

	ref.Status = model.ReferralStatus(status)
	ref.JoinedAt = fromMicros(joinedAt)
	ref.CreatedAt = fromMicros(createdAt)
	ref.UpdatedAt = fromMicros(updatedAt)
	ref.InviterID = nullString(inviterID)
	ref.InviteCode = nullString(inviteCode)
	ref.InviterName = nullString(inviterNm)
	ref.InviteeName = nullString(inviteeNm)
	if resolvedAt.Valid {
		t := fromMicros(resolvedAt.Int64)
		ref.ResolvedAt = &t
	}
	return &ref, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
