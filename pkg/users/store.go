package users

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/database"
)

// Store persists user records and their task assignments
type Store interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByRefreshToken(ctx context.Context, token string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, user *User) error
	SetRefreshToken(ctx context.Context, id int64, token string) error
	SwapRefreshToken(ctx context.Context, id int64, presented, next string) (bool, error)
	UpdateRole(ctx context.Context, id int64, role Role) error
	AddTask(ctx context.Context, userID, taskID int64) error
	SetProfilePicture(ctx context.Context, id int64, path string) error
	Delete(ctx context.Context, id int64) error
}

// SQLStore implements Store on database/sql
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const userColumns = `id, username, password_hash, first_name, last_name, birth_date, hire_date,
	department, role, profile_picture_path, refresh_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var (
		birth, hire    sql.NullTime
		picture, token sql.NullString
		role           string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &birth, &hire,
		&u.Department, &role, &picture, &token, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if birth.Valid {
		t := birth.Time
		u.BirthDate = &t
	}
	if hire.Valid {
		t := hire.Time
		u.HireDate = &t
	}
	u.Role = Role(role)
	u.ProfilePicturePath = picture.String
	u.RefreshToken = token.String
	u.TaskIDs = []int64{}
	return u, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts user and its task set, filling ID and timestamps
func (s *SQLStore) Create(ctx context.Context, user *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err, "failed to begin transaction")
	}
	defer database.Rollback(tx)

	now := s.now()
	query := `
		INSERT INTO users (username, password_hash, first_name, last_name, birth_date, hire_date,
			department, role, profile_picture_path, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		user.Username, user.PasswordHash, user.FirstName, user.LastName,
		nullTime(user.BirthDate), nullTime(user.HireDate), user.Department, string(user.Role),
		nullString(user.ProfilePicturePath), nullString(user.RefreshToken), now, now,
	).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("username %q already exists", user.Username)
		}
		return apperr.Internal(err, "failed to create user")
	}

	if err := replaceTasks(ctx, tx, user.ID, user.TaskIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(err, "failed to commit user")
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	if user.TaskIDs == nil {
		user.TaskIDs = []int64{}
	}
	return nil
}

func (s *SQLStore) getOne(ctx context.Context, where string, arg interface{}) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoRows
	}
	if err != nil {
		return nil, apperr.Internal(err, "failed to get user")
	}
	if err := s.loadTasks(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

var errNoRows = errors.New("no rows")

// GetByID retrieves a user by ID
func (s *SQLStore) GetByID(ctx context.Context, id int64) (*User, error) {
	user, err := s.getOne(ctx, "id = $1", id)
	if errors.Is(err, errNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	return user, err
}

// GetByUsername retrieves a user by username
func (s *SQLStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	user, err := s.getOne(ctx, "username = $1", username)
	if errors.Is(err, errNoRows) {
		return nil, apperr.NotFound("user %q not found", username)
	}
	return user, err
}

// GetByRefreshToken finds the user whose stored refresh token equals token
func (s *SQLStore) GetByRefreshToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, apperr.NotFound("refresh token not found")
	}
	user, err := s.getOne(ctx, "refresh_token = $1", token)
	if errors.Is(err, errNoRows) {
		return nil, apperr.NotFound("refresh token not found")
	}
	return user, err
}

func (s *SQLStore) loadTasks(ctx context.Context, user *User) error {
	rows, err := s.db.QueryContext(ctx, "SELECT task_id FROM user_tasks WHERE user_id = $1 ORDER BY task_id", user.ID)
	if err != nil {
		return apperr.Internal(err, "failed to load user tasks")
	}
	defer rows.Close()

	user.TaskIDs = []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return apperr.Internal(err, "failed to scan user task")
		}
		user.TaskIDs = append(user.TaskIDs, id)
	}
	if err := rows.Err(); err != nil {
		return apperr.Internal(err, "failed to load user tasks")
	}
	return nil
}

// List returns every user ordered by id
func (s *SQLStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	defer rows.Close()

	list := []*User{}
	byID := map[int64]*User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal(err, "failed to scan user")
		}
		list = append(list, user)
		byID[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list users")
	}
	rows.Close()

	taskRows, err := s.db.QueryContext(ctx, "SELECT user_id, task_id FROM user_tasks ORDER BY user_id, task_id")
	if err != nil {
		return nil, apperr.Internal(err, "failed to list user tasks")
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var userID, taskID int64
		if err := taskRows.Scan(&userID, &taskID); err != nil {
			return nil, apperr.Internal(err, "failed to scan user task")
		}
		if user, ok := byID[userID]; ok {
			user.TaskIDs = append(user.TaskIDs, taskID)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, apperr.Internal(err, "failed to list user tasks")
	}

	return list, nil
}

// Update writes every profile column and replaces the task set in one
// transaction. The refresh token is not touched.
func (s *SQLStore) Update(ctx context.Context, user *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err, "failed to begin transaction")
	}
	defer database.Rollback(tx)

	now := s.now()
	query := `
		UPDATE users
		SET username = $1, password_hash = $2, first_name = $3, last_name = $4, birth_date = $5,
			hire_date = $6, department = $7, role = $8, profile_picture_path = $9, updated_at = $10
		WHERE id = $11
	`
	result, err := tx.ExecContext(ctx, query,
		user.Username, user.PasswordHash, user.FirstName, user.LastName, nullTime(user.BirthDate),
		nullTime(user.HireDate), user.Department, string(user.Role), nullString(user.ProfilePicturePath),
		now, user.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Conflict("username %q already exists", user.Username)
		}
		return apperr.Internal(err, "failed to update user")
	}
	if err := expectOneRow(result, user.ID); err != nil {
		return err
	}

	if err := replaceTasks(ctx, tx, user.ID, user.TaskIDs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(err, "failed to commit user update")
	}
	user.UpdatedAt = now
	return nil
}

func replaceTasks(ctx context.Context, tx *sql.Tx, userID int64, taskIDs []int64) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_tasks WHERE user_id = $1", userID); err != nil {
		return apperr.Internal(err, "failed to clear user tasks")
	}
	for _, taskID := range taskIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO user_tasks (user_id, task_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			userID, taskID,
		)
		if err != nil {
			return apperr.Internal(err, "failed to assign task %d", taskID)
		}
	}
	return nil
}

// SetRefreshToken overwrites the stored refresh token, invalidating the old one
func (s *SQLStore) SetRefreshToken(ctx context.Context, id int64, token string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = $1, updated_at = $2 WHERE id = $3",
		nullString(token), s.now(), id,
	)
	if err != nil {
		return apperr.Internal(err, "failed to store refresh token")
	}
	return expectOneRow(result, id)
}

// SwapRefreshToken replaces presented with next only if presented is still
// the stored token. It returns false when another exchange got there first.
func (s *SQLStore) SwapRefreshToken(ctx context.Context, id int64, presented, next string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET refresh_token = $1, updated_at = $2 WHERE id = $3 AND refresh_token = $4",
		next, s.now(), id, presented,
	)
	if err != nil {
		return false, apperr.Internal(err, "failed to rotate refresh token")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperr.Internal(err, "failed to rotate refresh token")
	}
	return n == 1, nil
}

// UpdateRole sets a user's role
func (s *SQLStore) UpdateRole(ctx context.Context, id int64, role Role) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET role = $1, updated_at = $2 WHERE id = $3",
		string(role), s.now(), id,
	)
	if err != nil {
		return apperr.Internal(err, "failed to update role")
	}
	return expectOneRow(result, id)
}

// AddTask assigns a task to a user. Assigning twice is a no-op.
func (s *SQLStore) AddTask(ctx context.Context, userID, taskID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO user_tasks (user_id, task_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, taskID,
	)
	if err != nil {
		return apperr.Internal(err, "failed to assign task")
	}
	return nil
}

// SetProfilePicture records the public path of a user's picture
func (s *SQLStore) SetProfilePicture(ctx context.Context, id int64, path string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET profile_picture_path = $1, updated_at = $2 WHERE id = $3",
		nullString(path), s.now(), id,
	)
	if err != nil {
		return apperr.Internal(err, "failed to set profile picture")
	}
	return expectOneRow(result, id)
}

// Delete removes a user and its task assignments
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err, "failed to begin transaction")
	}
	defer database.Rollback(tx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_tasks WHERE user_id = $1", id); err != nil {
		return apperr.Internal(err, "failed to delete user tasks")
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return apperr.Internal(err, "failed to delete user")
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(err, "failed to commit user delete")
	}
	return nil
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "failed to read affected rows")
	}
	if n == 0 {
		return apperr.NotFound("user %d not found", id)
	}
	return nil
}
