package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/database"
)

// Service manages tasks
type Service interface {
	List(ctx context.Context) ([]*Task, error)
	ListForUser(ctx context.Context, userID int64) ([]*Task, error)
	Get(ctx context.Context, id int64) (*Task, error)
	Create(ctx context.Context, req CreateRequest, createdBy *int64) (*Task, error)
	Update(ctx context.Context, id int64, req UpdateRequest) (*Task, error)
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
}

// SQLService implements Service on database/sql
type SQLService struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLService creates a new SQLService
func NewSQLService(db *sql.DB) *SQLService {
	return &SQLService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const taskColumns = "t.id, t.title, t.description, t.status, t.deadline, t.created_by, t.created_at, t.updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var (
		status    string
		deadline  sql.NullTime
		createdBy sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &deadline, &createdBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	if createdBy.Valid {
		id := createdBy.Int64
		t.CreatedBy = &id
	}
	return t, nil
}

func (s *SQLService) query(ctx context.Context, query string, args ...interface{}) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list tasks")
	}
	defer rows.Close()

	list := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan task")
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list tasks")
	}
	return list, nil
}

// List returns every task ordered by id
func (s *SQLService) List(ctx context.Context) ([]*Task, error) {
	return s.query(ctx, "SELECT "+taskColumns+" FROM tasks t ORDER BY t.id")
}

// ListForUser returns the tasks assigned to a user
func (s *SQLService) ListForUser(ctx context.Context, userID int64) ([]*Task, error) {
	return s.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN user_tasks ut ON ut.task_id = t.id
		WHERE ut.user_id = $1
		ORDER BY t.id`, userID)
}

// Get retrieves a task by id
func (s *SQLService) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks t WHERE t.id = $1", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("task %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to get task")
	}
	return t, nil
}

// Create inserts a task
func (s *SQLService) Create(ctx context.Context, req CreateRequest, createdBy *int64) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	status, _ := ParseStatus(req.Status)

	now := s.now()
	t := &Task{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      status,
		Deadline:    req.Deadline,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `
		INSERT INTO tasks (title, description, status, deadline, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		t.Title, t.Description, string(t.Status), nullTime(t.Deadline), nullInt64(createdBy), now, now,
	).Scan(&t.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to create task")
	}
	return t, nil
}

// Update applies a partial update and returns the stored task
func (s *SQLService) Update(ctx context.Context, id int64, req UpdateRequest) (*Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, strings.TrimSpace(*req.Title))
		argPos++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *req.Description)
		argPos++
	}
	if req.Status != nil {
		status, err := ParseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(status))
		argPos++
	}
	if req.Deadline != nil {
		setClauses = append(setClauses, fmt.Sprintf("deadline = $%d", argPos))
		args = append(args, req.Deadline.UTC())
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, s.now())
	argPos++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to update task")
	}
	if err := expectOneRow(result, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a task and its assignments
func (s *SQLService) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err, "failed to begin transaction")
	}
	defer database.Rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_tasks WHERE task_id = $1", id); err != nil {
		return apperr.Internal(err, "failed to delete task assignments")
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return apperr.Internal(err, "failed to delete task")
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(err, "failed to commit task delete")
	}
	return nil
}

// Exists reports whether a task exists
func (s *SQLService) Exists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE id = $1", id).Scan(&n); err != nil {
		return false, apperr.Internal(err, "failed to check task")
	}
	return n > 0, nil
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "failed to read affected rows")
	}
	if n == 0 {
		return apperr.NotFound("task %d not found", id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
