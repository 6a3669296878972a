package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"opstrack.org/internal/auth"
	"opstrack.org/internal/permission"
)

var _ auth.PrincipalStore = (*principalStore)(nil)

type principalStore struct{ db *sql.DB }

func (s *principalStore) FindByUsername(ctx context.Context, username string) (*auth.Principal, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, username, email, role, active, credential, team_id
		from principals
		where username = $1
	`, username))
}

func (s *principalStore) FindByID(ctx context.Context, id int64) (*auth.Principal, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, username, email, role, active, credential, team_id
		from principals
		where id = $1
	`, id))
}

func (s *principalStore) UpdateCredential(ctx context.Context, id int64, cred auth.Credential) error {
	res, err := s.db.ExecContext(ctx, `
		update principals set credential = $2, updated_at = now() where id = $1
	`, id, cred.Encode())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *principalStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update principals set active = $2, updated_at = now() where id = $1
	`, id, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *principalStore) scanOne(row *sql.Row) (*auth.Principal, error) {
	var (
		p       auth.Principal
		email   sql.NullString
		rawRole string
		stored  string
		teamID  sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Username, &email, &rawRole, &p.Active, &stored, &teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role, err := permission.ParseRole(rawRole)
	if err != nil {
		// A bad role is an integrity violation; fail closed.
		return nil, fmt.Errorf("principal %d: %w", p.ID, err)
	}
	p.Role = role
	p.Email = email.String
	p.TeamID = teamID.Int64
	p.Credential = auth.DecodeCredential(stored)
	return &p, nil
}
