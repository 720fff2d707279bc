package models

import "time"

// User is a registered account. The password is stored as a bcrypt hash and
// never serialized into responses.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Project groups tasks under a single owning user.
type Project struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ProjectSummary is a project row annotated with task counters for the
// project list view.
type ProjectSummary struct {
	Project
	TotalTasks     int64 `json:"total_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
}

// Task belongs to exactly one project. Status and priority are free-form
// strings; the documented values are pending/in_progress/completed and
// low/medium/high but nothing rejects other input.
type Task struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Defaults applied when a task is created without these fields.
const (
	DefaultTaskStatus   = "pending"
	DefaultTaskPriority = "medium"
)
