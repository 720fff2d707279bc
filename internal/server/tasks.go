package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
	"taskhub/internal/storage/sqlite"
	"taskhub/internal/timeutil"
)

type taskCreateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
}

// taskJSON shapes a task for responses. project_id is only exposed on the
// single-task endpoints, where the task is addressed outside its project.
func taskJSON(t models.Task, withProject bool) gin.H {
	body := gin.H{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"due_date":    timeutil.Format(t.DueDate),
		"created_at":  timeutil.Format(&t.CreatedAt),
	}
	if withProject {
		body["project_id"] = t.ProjectID
	}
	return body
}

// handleListTasks fetches all tasks in an owned project.
func (s *Server) handleListTasks(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), currentUserID(c), projectID)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	result := make([]gin.H, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, taskJSON(t, false))
	}
	c.JSON(http.StatusOK, result)
}

// handleCreateTask inserts a new task into an owned project. Ownership is
// verified before the body is even looked at, so a foreign project 404s
// ahead of any validation error.
func (s *Server) handleCreateTask(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if _, err := s.store.GetProject(c.Request.Context(), currentUserID(c), projectID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	var req taskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || *req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	var dueDate *time.Time
	if req.DueDate != nil {
		parsed, err := timeutil.Parse(*req.DueDate)
		if err != nil {
			respondDateError(c)
			return
		}
		dueDate = parsed
	}

	// defaults apply only when the key is absent; an explicit empty string
	// is stored as-is
	status := models.DefaultTaskStatus
	if req.Status != nil {
		status = *req.Status
	}
	priority := models.DefaultTaskPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	task, err := s.store.CreateTask(c.Request.Context(), currentUserID(c), models.Task{
		ProjectID:   projectID,
		Title:       *req.Title,
		Description: strOrEmpty(req.Description),
		Status:      status,
		Priority:    priority,
		DueDate:     dueDate,
	})
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, taskJSON(task, false))
}

// handleGetTask retrieves a task by id through the ownership join.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, err := s.store.GetTask(c.Request.Context(), currentUserID(c), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, taskJSON(task, true))
}

// handleUpdateTask applies a partial update over the five mutable fields.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	patch := sqlite.TaskPatch{
		Title:       stringField(body, "title"),
		Description: stringField(body, "description"),
		Status:      stringField(body, "status"),
		Priority:    stringField(body, "priority"),
	}
	set, due, err := dueDateField(body)
	if err != nil {
		respondDateError(c)
		return
	}
	patch.SetDueDate, patch.DueDate = set, due

	task, err := s.store.UpdateTask(c.Request.Context(), currentUserID(c), id, patch)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, taskJSON(task, true))
}

// handleDeleteTask removes a task reachable by the caller.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := s.store.DeleteTask(c.Request.Context(), currentUserID(c), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Task successfully deleted"})
}
