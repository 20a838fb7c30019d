// Package news stores announcements shown on the dashboard.
package news

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
)

// News is a dashboard announcement
type News struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  *int64    `json:"authorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateRequest describes a new announcement
type CreateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate checks the request fields
func (r CreateRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
	)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return nil
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Service manages news
type Service interface {
	List(ctx context.Context) ([]*News, error)
	Get(ctx context.Context, id int64) (*News, error)
	Create(ctx context.Context, req CreateRequest, authorID *int64) (*News, error)
	Update(ctx context.Context, id int64, req UpdateRequest) (*News, error)
	Delete(ctx context.Context, id int64) error
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

const newsColumns = "id, title, content, author_id, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNews(row rowScanner) (*News, error) {
	n := &News{}
	var author sql.NullInt64
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &author, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if author.Valid {
		id := author.Int64
		n.AuthorID = &id
	}
	return n, nil
}

// List returns all news, newest first
func (s *SQLService) List(ctx context.Context) ([]*News, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+newsColumns+" FROM news ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, apperr.Internal(err, "failed to list news")
	}
	defer rows.Close()

	list := []*News{}
	for rows.Next() {
		n, err := scanNews(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan news")
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list news")
	}
	return list, nil
}

// Get retrieves news by id
func (s *SQLService) Get(ctx context.Context, id int64) (*News, error) {
	n, err := scanNews(s.db.QueryRowContext(ctx, "SELECT "+newsColumns+" FROM news WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("news %d not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to get news")
	}
	return n, nil
}

// Create inserts an announcement
func (s *SQLService) Create(ctx context.Context, req CreateRequest, authorID *int64) (*News, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	n := &News{
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var author sql.NullInt64
	if authorID != nil {
		author = sql.NullInt64{Int64: *authorID, Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO news (title, content, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		n.Title, n.Content, author, now, now,
	).Scan(&n.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to create news")
	}
	return n, nil
}

// Update applies a partial update and returns the stored announcement
func (s *SQLService) Update(ctx context.Context, id int64, req UpdateRequest) (*News, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperr.Validation("title: cannot be blank")
		}
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, title)
		argPos++
	}
	if req.Content != nil {
		setClauses = append(setClauses, fmt.Sprintf("content = $%d", argPos))
		args = append(args, *req.Content)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, s.now())
	argPos++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE news SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err, "failed to update news")
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, apperr.Internal(err, "failed to read affected rows")
	} else if n == 0 {
		return nil, apperr.NotFound("news %d not found", id)
	}
	return s.Get(ctx, id)
}

// Delete removes an announcement
func (s *SQLService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM news WHERE id = $1", id)
	if err != nil {
		return apperr.Internal(err, "failed to delete news")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "failed to read affected rows")
	}
	if n == 0 {
		return apperr.NotFound("news %d not found", id)
	}
	return nil
}
