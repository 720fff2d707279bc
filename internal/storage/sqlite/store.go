package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskhub/internal/models"
)

// Sentinel errors handlers branch on. A resource that exists but belongs to
// another user surfaces as ErrNotFound, same as one that does not exist.
var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already registered")
)

// Store wraps access to the SQLite database and exposes high level helpers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL UNIQUE,
            email TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS projects (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            due_date DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(user_id) REFERENCES users(id)
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            project_id INTEGER NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            priority TEXT NOT NULL DEFAULT 'medium',
            due_date DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(project_id) REFERENCES projects(id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateUser inserts a new account after checking username and email
// uniqueness, username first. The checks and the insert share a transaction.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (models.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return models.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists > 0 {
		return models.User{}, ErrUsernameTaken
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
		return models.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return models.User{}, ErrEmailTaken
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO users(username, email, password_hash) VALUES(?, ?, ?)`, username, email, passwordHash)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("user id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.User{}, fmt.Errorf("commit user: %w", err)
	}

	return s.GetUser(ctx, id)
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername fetches an account by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// ListProjects retrieves the caller's projects with task counters.
func (s *Store) ListProjects(ctx context.Context, userID int64) ([]models.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.user_id, p.title, p.description, p.due_date, p.created_at,
            COUNT(t.id),
            COALESCE(SUM(CASE WHEN t.status = 'completed' THEN 1 ELSE 0 END), 0)
        FROM projects p
        LEFT JOIN tasks t ON t.project_id = p.id
        WHERE p.user_id = ?
        GROUP BY p.id
        ORDER BY p.created_at, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.ProjectSummary
	for rows.Next() {
		var p models.ProjectSummary
		var due sql.NullTime
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &due, &p.CreatedAt, &p.TotalTasks, &p.CompletedTasks); err != nil {
			return nil, fmt.Errorf("scan project summary: %w", err)
		}
		p.DueDate = nullableTime(due)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateProject persists a new project owned by p.UserID.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO projects(user_id, title, description, due_date) VALUES(?, ?, ?, ?)`,
		p.UserID, p.Title, p.Description, timeArg(p.DueDate))
	if err != nil {
		return models.Project{}, fmt.Errorf("insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Project{}, fmt.Errorf("project id: %w", err)
	}
	return s.GetProject(ctx, p.UserID, id)
}

// GetProject fetches a project by id, scoped to the owning user.
func (s *Store) GetProject(ctx context.Context, userID, id int64) (models.Project, error) {
	var p models.Project
	var due sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, description, due_date, created_at
        FROM projects WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &due, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.DueDate = nullableTime(due)
	return p, nil
}

// ProjectPatch carries the fields present in an update request. Nil pointers
// leave the column untouched; SetDueDate with a nil DueDate clears the date.
type ProjectPatch struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	SetDueDate  bool
}

// UpdateProject applies a partial update to an owned project.
func (s *Store) UpdateProject(ctx context.Context, userID, id int64, patch ProjectPatch) (models.Project, error) {
	current, err := s.GetProject(ctx, userID, id)
	if err != nil {
		return models.Project{}, err
	}

	if patch.Title != nil {
		current.Title = *patch.Title
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.SetDueDate {
		current.DueDate = patch.DueDate
	}

	_, err = s.db.ExecContext(ctx, `UPDATE projects SET title = ?, description = ?, due_date = ? WHERE id = ? AND user_id = ?`,
		current.Title, current.Description, timeArg(current.DueDate), id, userID)
	if err != nil {
		return models.Project{}, fmt.Errorf("update project: %w", err)
	}
	return s.GetProject(ctx, userID, id)
}

// DeleteProject removes an owned project and every task in it. The task and
// project deletes share a transaction so no orphaned tasks can remain.
func (s *Store) DeleteProject(ctx context.Context, userID, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM projects WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists); err != nil {
		return fmt.Errorf("check project: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("delete project tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return tx.Commit()
}

// ListTasks returns all tasks in a project after verifying the project
// belongs to the caller.
func (s *Store) ListTasks(ctx context.Context, userID, projectID int64) ([]models.Task, error) {
	if _, err := s.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, title, description, status, priority, due_date, created_at
        FROM tasks WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a new task after verifying project ownership.
func (s *Store) CreateTask(ctx context.Context, userID int64, t models.Task) (models.Task, error) {
	if _, err := s.GetProject(ctx, userID, t.ProjectID); err != nil {
		return models.Task{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(project_id, title, description, status, priority, due_date) VALUES(?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.Title, t.Description, t.Status, t.Priority, timeArg(t.DueDate))
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, userID, id)
}

// GetTask retrieves a task by id, joined through its project's owner. A task
// under another user's project reads as not found.
func (s *Store) GetTask(ctx context.Context, userID, id int64) (models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT t.id, t.project_id, t.title, t.description, t.status, t.priority, t.due_date, t.created_at
        FROM tasks t
        JOIN projects p ON p.id = t.project_id
        WHERE t.id = ? AND p.user_id = ?`, id, userID)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// TaskPatch carries the fields present in a task update request, with the
// same presence semantics as ProjectPatch.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *time.Time
	SetDueDate  bool
}

// UpdateTask applies a partial update to a task reachable by the caller.
func (s *Store) UpdateTask(ctx context.Context, userID, id int64, patch TaskPatch) (models.Task, error) {
	current, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return models.Task{}, err
	}

	if patch.Title != nil {
		current.Title = *patch.Title
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.Priority != nil {
		current.Priority = *patch.Priority
	}
	if patch.SetDueDate {
		current.DueDate = patch.DueDate
	}

	_, err = s.db.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?
        WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)`,
		current.Title, current.Description, current.Status, current.Priority, timeArg(current.DueDate), id, userID)
	if err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", err)
	}
	return s.GetTask(ctx, userID, id)
}

// DeleteTask removes a task reachable by the caller.
func (s *Store) DeleteTask(ctx context.Context, userID, id int64) error {
	if _, err := s.GetTask(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks
        WHERE id = ? AND project_id IN (SELECT id FROM projects WHERE user_id = ?)`, id, userID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var due sql.NullTime
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &due, &t.CreatedAt); err != nil {
		return models.Task{}, err
	}
	t.DueDate = nullableTime(due)
	return t, nil
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

// timeArg converts an optional timestamp into a driver argument, keeping
// NULL for absent dates.
func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
