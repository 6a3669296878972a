package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"opstrack.org/internal/session"
)

var _ session.Store = (*sessionStore)(nil)

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, rec session.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (token_id, subject_id, issued_at, expires_at, revoked, origin_ip, user_agent)
		values ($1, $2, $3, $4, false, $5, $6)
	`, rec.TokenID, rec.SubjectID, rec.IssuedAt, rec.ExpiresAt, rec.OriginIP, rec.UserAgent)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrDuplicateToken
		}
		return err
	}
	return nil
}

func (s *sessionStore) Get(ctx context.Context, tokenID string) (session.Record, error) {
	var (
		rec           session.Record
		revokedAt     sql.NullTime
		revokedReason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select token_id, subject_id, issued_at, expires_at, revoked, revoked_at, revoked_reason, origin_ip, user_agent
		from sessions
		where token_id = $1
	`, tokenID).Scan(
		&rec.TokenID, &rec.SubjectID, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.Revoked, &revokedAt, &revokedReason, &rec.OriginIP, &rec.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, err
	}
	if revokedAt.Valid {
		at := revokedAt.Time
		rec.RevokedAt = &at
	}
	rec.RevokedReason = revokedReason.String
	return rec, nil
}

func (s *sessionStore) MarkRevoked(ctx context.Context, tokenID, reason string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set revoked = true, revoked_at = $2, revoked_reason = $3
		where token_id = $1 and revoked = false
	`, tokenID, at, reason)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *sessionStore) MarkRevokedBySubject(ctx context.Context, subjectID int64, reason string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set revoked = true, revoked_at = $2, revoked_reason = $3
		where subject_id = $1 and revoked = false
	`, subjectID, at, reason)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *sessionStore) DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from sessions
		where expires_at < $1 or (revoked_at is not null and revoked_at < $2)
	`, now, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
