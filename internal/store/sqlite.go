package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// sqliteSchema creates the two tables on open. Timestamps are stored
// as epoch seconds in UTC so range comparisons stay exact regardless
// of the driver's text formatting.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    full_name TEXT NOT NULL,
    department TEXT NOT NULL,
    staff_code TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL,
    basic_guidance TEXT NOT NULL DEFAULT '',
    issue_description TEXT NOT NULL DEFAULT '',
    ai_guidance TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    assigned_engineer TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS staff (
    code TEXT PRIMARY KEY,
    full_name TEXT NOT NULL,
    department TEXT NOT NULL DEFAULT '',
    position TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT ''
);
`

type ticketRow struct {
	ID               int64  `db:"id"`
	ChatID           int64  `db:"chat_id"`
	FullName         string `db:"full_name"`
	Department       string `db:"department"`
	StaffCode        string `db:"staff_code"`
	IssueType        string `db:"issue_type"`
	BasicGuidance    string `db:"basic_guidance"`
	IssueDescription string `db:"issue_description"`
	AIGuidance       string `db:"ai_guidance"`
	Status           string `db:"status"`
	AssignedEngineer string `db:"assigned_engineer"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r ticketRow) toDomain() *domain.Ticket {
	return &domain.Ticket{
		ID:               r.ID,
		ChatID:           r.ChatID,
		FullName:         r.FullName,
		Department:       r.Department,
		StaffCode:        r.StaffCode,
		IssueType:        r.IssueType,
		BasicGuidance:    r.BasicGuidance,
		IssueDescription: r.IssueDescription,
		AIGuidance:       r.AIGuidance,
		Status:           domain.TicketStatus(r.Status),
		AssignedEngineer: r.AssignedEngineer,
		CreatedAt:        time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:        time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

// SqliteStore is the default TicketStore: a single SQLite file with
// every operation serialized through one exclusive critical section.
// Acceptable because ticket volume is low and human-paced.
type SqliteStore struct {
	mu  sync.Mutex
	db  *sqlx.DB
	loc *time.Location
	now func() time.Time
}

// NewSqliteStore opens (creating if needed) the database at path.
// The location defines the reference timezone for day bucketing.
func NewSqliteStore(path string, loc *time.Location) (*SqliteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if loc == nil {
		loc = time.UTC
	}
	return &SqliteStore{db: db, loc: loc, now: time.Now}, nil
}

func (s *SqliteStore) CreateTicket(ctx context.Context, t NewTicket) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowUnix := s.now().Unix()
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO tickets (chat_id, full_name, department, staff_code, issue_type, basic_guidance, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ChatID, t.FullName, t.Department, t.StaffCode,
		t.Category.Title, t.Category.BasicGuidance,
		string(domain.StatusBasicGuidanceProvided), nowUnix, nowUnix)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SqliteStore) SetDescription(ctx context.Context, id int64, text string) error {
	return s.exec(ctx, `UPDATE tickets SET issue_description=?, updated_at=? WHERE id=?`,
		text, s.now().Unix(), id)
}

func (s *SqliteStore) SetAIGuidance(ctx context.Context, id int64, text string) error {
	return s.exec(ctx, `UPDATE tickets SET ai_guidance=?, status=?, updated_at=? WHERE id=?`,
		text, string(domain.StatusAIGuidanceProvided), s.now().Unix(), id)
}

func (s *SqliteStore) SetStatus(ctx context.Context, id int64, status domain.TicketStatus) error {
	return s.exec(ctx, `UPDATE tickets SET status=?, updated_at=? WHERE id=?`,
		string(status), s.now().Unix(), id)
}

func (s *SqliteStore) Assign(ctx context.Context, id int64, engineerName string) error {
	return s.exec(ctx, `UPDATE tickets SET assigned_engineer=?, status=?, updated_at=? WHERE id=?`,
		engineerName, string(domain.StatusEscalatedToEngineer), s.now().Unix(), id)
}

func (s *SqliteStore) AssignIfUnassigned(ctx context.Context, id int64, engineerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
        UPDATE tickets SET assigned_engineer=?, status=?, updated_at=?
        WHERE id=? AND assigned_engineer=''`,
		engineerName, string(domain.StatusEscalatedToEngineer), s.now().Unix(), id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SqliteStore) IsAssigned(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var engineer string
	err := s.db.GetContext(ctx, &engineer, `SELECT assigned_engineer FROM tickets WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return engineer != "", nil
}

func (s *SqliteStore) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row ticketRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tickets WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *SqliteStore) LoadsToday(ctx context.Context, engineerNames []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start, end := dayBounds(s.now(), s.loc)
	loads := make(map[string]int, len(engineerNames))
	for _, name := range engineerNames {
		var count int
		err := s.db.GetContext(ctx, &count, `
            SELECT COUNT(*) FROM tickets
            WHERE assigned_engineer=? AND created_at >= ? AND created_at < ?`,
			name, start.Unix(), end.Unix())
		if err != nil {
			return nil, err
		}
		loads[name] = count
	}
	return loads, nil
}

func (s *SqliteStore) Summary(ctx context.Context, r DateRange) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	where := "1=1"
	args := []any{}
	if r.From != nil {
		where += " AND created_at >= ?"
		args = append(args, r.From.Unix())
	}
	if r.To != nil {
		where += " AND created_at < ?"
		args = append(args, r.To.Unix())
	}

	summary := &Summary{
		ByDepartment: map[string]int{},
		ByIssueType:  map[string]int{},
		ByStatus:     map[domain.TicketStatus]int{},
		ByEngineer:   map[string]EngineerStats{},
	}

	if err := s.db.GetContext(ctx, &summary.Total,
		`SELECT COUNT(*) FROM tickets WHERE `+where, args...); err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	grouped := func(column string, sink func(key string, count int)) error {
		var rows []bucket
		query := fmt.Sprintf(
			`SELECT %s AS key, COUNT(*) AS count FROM tickets WHERE %s GROUP BY %s`,
			column, where, column)
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			return err
		}
		for _, row := range rows {
			sink(row.Key, row.Count)
		}
		return nil
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

	type engineerBucket struct {
		Name     string `db:"name"`
		Total    int    `db:"total"`
		Resolved int    `db:"resolved"`
	}
	var engineers []engineerBucket
	query := fmt.Sprintf(`
        SELECT assigned_engineer AS name,
               COUNT(*) AS total,
               SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END) AS resolved
        FROM tickets
        WHERE assigned_engineer != '' AND %s
        GROUP BY assigned_engineer`, where)
	engineerArgs := append([]any{string(resolvedStatuses[0]), string(resolvedStatuses[1])}, args...)
	if err := s.db.SelectContext(ctx, &engineers, query, engineerArgs...); err != nil {
		return nil, err
	}
	for _, row := range engineers {
		summary.ByEngineer[row.Name] = EngineerStats{Total: row.Total, Resolved: row.Resolved}
	}

	return summary, nil
}

func (s *SqliteStore) UpsertStaff(ctx context.Context, staff domain.Staff) error {
	return s.exec(ctx, `
        INSERT INTO staff (code, full_name, department, position, phone)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(code) DO UPDATE SET
            full_name=excluded.full_name,
            department=excluded.department,
            position=excluded.position,
            phone=excluded.phone`,
		staff.Code, staff.FullName, staff.Department, staff.Position, staff.Phone)
}

func (s *SqliteStore) GetStaff(ctx context.Context, code string) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var staff domain.Staff
	err := s.db.QueryRowxContext(ctx,
		`SELECT code, full_name, department, position, phone FROM staff WHERE code=?`, code).
		Scan(&staff.Code, &staff.FullName, &staff.Department, &staff.Position, &staff.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *SqliteStore) IsCodeAllowed(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM staff WHERE code=?`, code); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SqliteStore) HasAnyStaff(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM staff`); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// exec runs a blind mutation under the store lock. A missing id is a
// silent no-op per the store contract.
func (s *SqliteStore) exec(ctx context.Context, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
