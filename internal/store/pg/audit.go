package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"opstrack.org/internal/audit"
)

var _ audit.Store = (*auditStore)(nil)

type auditStore struct{ db *sql.DB }

const auditColumns = `id, ts, actor_id, actor_username, actor_role, action, resource_kind, resource_id, team_id, severity, detail, origin_ip, user_agent`

func (s *auditStore) Append(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range events {
		detail, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("marshal detail: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			insert into audit_events (`+auditColumns+`)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`,
			ev.ID, ev.Timestamp, ev.ActorID, ev.ActorUsername, ev.ActorRole,
			string(ev.Action), ev.ResourceKind, ev.ResourceID, ev.TeamID,
			string(ev.Severity), detail, ev.OriginIP, ev.UserAgent,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *auditStore) Query(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Event, error) {
	where, args := buildAuditFilter(filter)
	order := "asc"
	if page.Desc {
		order = "desc"
	}
	query := `select ` + auditColumns + ` from audit_events` + where + ` order by ts ` + order
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *auditStore) Export(ctx context.Context, filter audit.Filter, fn func(audit.Event) error) error {
	where, args := buildAuditFilter(filter)
	query := `select ` + auditColumns + ` from audit_events` + where + ` order by ts asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *auditStore) DeleteBefore(ctx context.Context, horizon time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_events where ts < $1`, horizon)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func buildAuditFilter(filter audit.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.From != nil {
		add("ts >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("ts < $%d", *filter.To)
	}
	if filter.ActorID != 0 {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if filter.ResourceKind != "" {
		add("resource_kind = $%d", filter.ResourceKind)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.TeamID != 0 {
		add("team_id = $%d", filter.TeamID)
	}
	if filter.Severity != "" {
		add("severity = $%d", string(filter.Severity))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " where " + strings.Join(clauses, " and "), args
}

func scanAuditEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		ev     audit.Event
		action string
		sev    string
		detail []byte
	)
	err := rows.Scan(
		&ev.ID, &ev.Timestamp, &ev.ActorID, &ev.ActorUsername, &ev.ActorRole,
		&action, &ev.ResourceKind, &ev.ResourceID, &ev.TeamID,
		&sev, &detail, &ev.OriginIP, &ev.UserAgent,
	)
	if err != nil {
		return audit.Event{}, err
	}
	ev.Action = audit.ActionKind(action)
	ev.Severity = audit.Severity(sev)
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return audit.Event{}, fmt.Errorf("decode detail: %w", err)
		}
	}
	return ev, nil
}
