package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"opstrack.org/internal/permission"
)

var (
	_ permission.GrantStore    = (*grantStore)(nil)
	_ permission.TeamDirectory = (*teamDirectory)(nil)
)

type grantStore struct{ db *sql.DB }

func (s *grantStore) Get(ctx context.Context, subjectID, teamID int64) (permission.Grant, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		select permission from team_grants
		where subject_id = $1 and team_id = $2
	`, subjectID, teamID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return permission.Grant{}, permission.ErrNotFound
	}
	if err != nil {
		return permission.Grant{}, err
	}
	perm, err := permission.ParsePermission(raw)
	if err != nil {
		return permission.Grant{}, fmt.Errorf("stored grant for subject %d team %d: %w", subjectID, teamID, err)
	}
	return permission.Grant{SubjectID: subjectID, TeamID: teamID, Permission: perm}, nil
}

func (s *grantStore) ListBySubject(ctx context.Context, subjectID int64) ([]permission.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select team_id, permission from team_grants
		where subject_id = $1
		order by team_id
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []permission.Grant
	for rows.Next() {
		var (
			teamID int64
			raw    string
		)
		if err := rows.Scan(&teamID, &raw); err != nil {
			return nil, err
		}
		perm, err := permission.ParsePermission(raw)
		if err != nil {
			return nil, fmt.Errorf("stored grant for subject %d team %d: %w", subjectID, teamID, err)
		}
		grants = append(grants, permission.Grant{SubjectID: subjectID, TeamID: teamID, Permission: perm})
	}
	return grants, rows.Err()
}

func (s *grantStore) Upsert(ctx context.Context, grant permission.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into team_grants (subject_id, team_id, permission)
		values ($1, $2, $3)
		on conflict (subject_id, team_id) do update set permission = excluded.permission
	`, grant.SubjectID, grant.TeamID, string(grant.Permission))
	return err
}

func (s *grantStore) Delete(ctx context.Context, subjectID, teamID int64) error {
	_, err := s.db.ExecContext(ctx, `
		delete from team_grants where subject_id = $1 and team_id = $2
	`, subjectID, teamID)
	return err
}

type teamDirectory struct{ db *sql.DB }

func (d *teamDirectory) PrimaryTeamID(ctx context.Context, subjectID int64) (int64, error) {
	var teamID sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		select team_id from principals where id = $1
	`, subjectID).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, permission.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if !teamID.Valid {
		return 0, permission.ErrNotFound
	}
	return teamID.Int64, nil
}

func (d *teamDirectory) ListTeamIDs(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `select id from teams order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
