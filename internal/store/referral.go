package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"nrrp.app/referrals/core/db"
	"nrrp.app/referrals/internal/model"
)

const referralColumns = `invitee_id, inviter_id, joined_at, status, invite_code,
	inviter_name, invitee_name, resolved_at, created_at, updated_at`

// TxRunner is the part of db.DB the Postgres store needs.
type TxRunner interface {
	Conn() db.DBTX
	WithTx(ctx context.Context, fn func(q db.DBTX) error) error
}

type referralStore struct {
	db TxRunner
}

func newReferralStore(database TxRunner) ReferralStore {
	return &referralStore{db: database}
}

func (s *referralStore) Get(ctx context.Context, inviteeID string) (*model.Referral, error) {
	row := s.db.Conn().QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE invitee_id = $1`, inviteeID)
	ref, err := scanReferral(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return ref, nil
}

func (s *referralStore) InsertIfAbsent(ctx context.Context, ref *model.Referral) (*model.Referral, bool, error) {
	var (
		stored  *model.Referral
		created bool
	)

	err := s.db.WithTx(ctx, func(q db.DBTX) error {
		row := q.QueryRow(ctx, `
			INSERT INTO referrals (invitee_id, inviter_id, joined_at, status, invite_code, inviter_name, invitee_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (invitee_id) DO NOTHING
			RETURNING `+referralColumns,
			ref.InviteeID, ref.InviterID, ref.JoinedAt.UTC(), ref.Status,
			ref.InviteCode, ref.InviterName, ref.InviteeName,
		)

		var err error
		stored, err = scanReferral(row)
		if err == nil {
			created = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("inserting referral: %w", err)
		}

		// Conflict: the row already exists, hand back what is stored.
		stored, err = scanReferral(q.QueryRow(ctx,
			`SELECT `+referralColumns+` FROM referrals WHERE invitee_id = $1`, ref.InviteeID))
		if err != nil {
			return fmt.Errorf("reading existing referral: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, mapPgError(err)
	}
	return stored, created, nil
}

func (s *referralStore) CompareAndSetStatus(ctx context.Context, inviteeID string, from, to model.ReferralStatus, at time.Time) (*model.Referral, bool, error) {
	var (
		current *model.Referral
		swapped bool
	)

	err := s.db.WithTx(ctx, func(q db.DBTX) error {
		row := q.QueryRow(ctx, `
			UPDATE referrals
			SET status = $3, resolved_at = $4, updated_at = now()
			WHERE invitee_id = $1 AND status = $2
			RETURNING `+referralColumns,
			inviteeID, from, to, at.UTC(),
		)

		var err error
		current, err = scanReferral(row)
		if err == nil {
			swapped = true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("updating referral status: %w", err)
		}

		current, err = scanReferral(q.QueryRow(ctx,
			`SELECT `+referralColumns+` FROM referrals WHERE invitee_id = $1`, inviteeID))
		return err
	})
	if err != nil {
		return nil, false, mapPgError(err)
	}
	return current, swapped, nil
}

func (s *referralStore) ListByInviter(ctx context.Context, inviterID string, page Page) ([]model.Referral, error) {
	rows, err := s.db.Conn().Query(ctx, `
		SELECT `+referralColumns+` FROM referrals
		WHERE inviter_id = $1 AND invitee_id > $2
		ORDER BY invitee_id
		LIMIT $3`,
		inviterID, page.After, page.limit(),
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectReferrals(rows)
}

func (s *referralStore) ListByStatus(ctx context.Context, status model.ReferralStatus, page Page) ([]model.Referral, error) {
	rows, err := s.db.Conn().Query(ctx, `
		SELECT `+referralColumns+` FROM referrals
		WHERE status = $1 AND invitee_id > $2
		ORDER BY invitee_id
		LIMIT $3`,
		status, page.After, page.limit(),
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	return collectReferrals(rows)
}

func (s *referralStore) Delete(ctx context.Context, inviteeID string) error {
	tag, err := s.db.Conn().Exec(ctx, `DELETE FROM referrals WHERE invitee_id = $1`, inviteeID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectReferrals(rows pgx.Rows) ([]model.Referral, error) {
	defer rows.Close()

	refs := []model.Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, mapPgError(err)
		}
		refs = append(refs, *ref)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err)
	}
	return refs, nil
}

func scanReferral(row pgx.Row) (*model.Referral, error) {
	var ref model.Referral
	if err := row.Scan(
		&ref.InviteeID,
		&ref.InviterID,
		&ref.JoinedAt,
		&ref.Status,
		&ref.InviteCode,
		&ref.InviterName,
		&ref.InviteeName,
		&ref.ResolvedAt,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ref.JoinedAt = ref.JoinedAt.UTC()
	return &ref, nil
}

// mapPgError translates driver errors into the store's sentinel errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
