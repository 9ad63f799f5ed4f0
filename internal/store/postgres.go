package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tickets (
    id BIGSERIAL PRIMARY KEY,
    chat_id BIGINT NOT NULL,
    full_name TEXT NOT NULL,
    department TEXT NOT NULL,
    staff_code TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL,
    basic_guidance TEXT NOT NULL DEFAULT '',
    issue_description TEXT NOT NULL DEFAULT '',
    ai_guidance TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    assigned_engineer TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS staff (
    code TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    department TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT ''
);
`

// PostgresStore implements TicketStore on a pgx pool. Selected when
// POSTGRES_DSN is configured; atomicity of AssignIfUnassigned comes
// from a conditional UPDATE instead of a process-local lock.
type PostgresStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
	now  func() time.Time
}

// NewPostgresStore connects, pings and applies the schema.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig, loc *time.Location, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("connected to postgres")
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresStore{pool: pool, loc: loc, now: time.Now}, nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, t NewTicket) (int64, error) {
	const query = `
        INSERT INTO tickets (chat_id, full_name, department, staff_code, issue_type, basic_guidance, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	var id int64
	err := s.pool.QueryRow(ctx, query,
		t.ChatID, t.FullName, t.Department, t.StaffCode,
		t.Category.Title, t.Category.BasicGuidance,
		string(domain.StatusBasicGuidanceProvided)).Scan(&id)
	return id, err
}

func (s *PostgresStore) SetDescription(ctx context.Context, id int64, text string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tickets SET issue_description=$1, updated_at=NOW() WHERE id=$2`, text, id)
	return err
}

func (s *PostgresStore) SetAIGuidance(ctx context.Context, id int64, text string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tickets SET ai_guidance=$1, status=$2, updated_at=NOW() WHERE id=$3`,
		text, string(domain.StatusAIGuidanceProvided), id)
	return err
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status domain.TicketStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	return err
}

func (s *PostgresStore) Assign(ctx context.Context, id int64, engineerName string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tickets SET assigned_engineer=$1, status=$2, updated_at=NOW() WHERE id=$3`,
		engineerName, string(domain.StatusEscalatedToEngineer), id)
	return err
}

func (s *PostgresStore) AssignIfUnassigned(ctx context.Context, id int64, engineerName string) (bool, error) {
	cmd, err := s.pool.Exec(ctx, `
        UPDATE tickets SET assigned_engineer=$1, status=$2, updated_at=NOW()
        WHERE id=$3 AND assigned_engineer=''`,
		engineerName, string(domain.StatusEscalatedToEngineer), id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (s *PostgresStore) IsAssigned(ctx context.Context, id int64) (bool, error) {
	var engineer string
	err := s.pool.QueryRow(ctx,
		`SELECT assigned_engineer FROM tickets WHERE id=$1`, id).Scan(&engineer)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return engineer != "", nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	const query = `
        SELECT id, chat_id, full_name, department, staff_code, issue_type, basic_guidance,
               issue_description, ai_guidance, status, assigned_engineer, created_at, updated_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ChatID,
		&ticket.FullName,
		&ticket.Department,
		&ticket.StaffCode,
		&ticket.IssueType,
		&ticket.BasicGuidance,
		&ticket.IssueDescription,
		&ticket.AIGuidance,
		&ticket.Status,
		&ticket.AssignedEngineer,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *PostgresStore) LoadsToday(ctx context.Context, engineerNames []string) (map[string]int, error) {
	start, end := dayBounds(s.now(), s.loc)
	loads := make(map[string]int, len(engineerNames))
	for _, name := range engineerNames {
		var count int
		err := s.pool.QueryRow(ctx, `
            SELECT COUNT(*) FROM tickets
            WHERE assigned_engineer=$1 AND created_at >= $2 AND created_at < $3`,
			name, start, end).Scan(&count)
		if err != nil {
			return nil, err
		}
		loads[name] = count
	}
	return loads, nil
}

func (s *PostgresStore) Summary(ctx context.Context, r DateRange) (*Summary, error) {
	where := "1=1"
	args := []any{}
	if r.From != nil {
		args = append(args, *r.From)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if r.To != nil {
		args = append(args, *r.To)
		where += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	summary := &Summary{
		ByDepartment: map[string]int{},
		ByIssueType:  map[string]int{},
		ByStatus:     map[domain.TicketStatus]int{},
		ByEngineer:   map[string]EngineerStats{},
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&summary.Total); err != nil {
		return nil, err
	}

	grouped := func(column string, sink func(key string, count int)) error {
		query := fmt.Sprintf(
			`SELECT %s, COUNT(*) FROM tickets WHERE %s GROUP BY %s`, column, where, column)
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				return err
			}
			sink(key, count)
		}
		return rows.Err()
	}

	if err := grouped("department", func(k string, c int) { summary.ByDepartment[k] = c }); err != nil {
		return nil, err
	}
	if err := grouped("issue_type", func(k string, c int) { summary.ByIssueType[k] = c }); err != nil {
		return nil, err
	}
	if err := grouped("status", func(k string, c int) { summary.ByStatus[domain.TicketStatus(k)] = c }); err != nil {
		return nil, err
	}

	engineerArgs := append([]any{}, args...)
	engineerArgs = append(engineerArgs,
		string(resolvedStatuses[0]), string(resolvedStatuses[1]))
	query := fmt.Sprintf(`
        SELECT assigned_engineer,
               COUNT(*),
               SUM(CASE WHEN status IN ($%d, $%d) THEN 1 ELSE 0 END)
        FROM tickets
        WHERE assigned_engineer != '' AND %s
        GROUP BY assigned_engineer`,
		len(engineerArgs)-1, len(engineerArgs), where)
	rows, err := s.pool.Query(ctx, query, engineerArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var stats EngineerStats
		if err := rows.Scan(&name, &stats.Total, &stats.Resolved); err != nil {
			return nil, err
		}
		summary.ByEngineer[name] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *PostgresStore) UpsertStaff(ctx context.Context, staff domain.Staff) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO staff (code, full_name, department, position, phone)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (code) DO UPDATE SET
            full_name=EXCLUDED.full_name,
            department=EXCLUDED.department,
            position=EXCLUDED.position,
            phone=EXCLUDED.phone`,
		staff.Code, staff.FullName, staff.Department, staff.Position, staff.Phone)
	return err
}

func (s *PostgresStore) GetStaff(ctx context.Context, code string) (*domain.Staff, error) {
	var staff domain.Staff
	err := s.pool.QueryRow(ctx,
		`SELECT code, full_name, department, position, phone FROM staff WHERE code=$1`, code).
		Scan(&staff.Code, &staff.FullName, &staff.Department, &staff.Position, &staff.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *PostgresStore) IsCodeAllowed(ctx context.Context, code string) (bool, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM staff WHERE code=$1`, code).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) HasAnyStaff(ctx context.Context) (bool, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ TicketStore = (*SqliteStore)(nil)
	_ TicketStore = (*PostgresStore)(nil)
)
