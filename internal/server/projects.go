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

type projectCreateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
}

// projectJSON shapes a project for responses, with formatted dates.
func projectJSON(p models.Project) gin.H {
	return gin.H{
		"id":          p.ID,
		"title":       p.Title,
		"description": p.Description,
		"due_date":    timeutil.Format(p.DueDate),
		"created_at":  timeutil.Format(&p.CreatedAt),
	}
}

// handleListProjects returns the caller's projects with task counters.
func (s *Server) handleListProjects(c *gin.Context) {
	summaries, err := s.store.ListProjects(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	result := make([]gin.H, 0, len(summaries))
	for _, p := range summaries {
		body := projectJSON(p.Project)
		body["total_tasks"] = p.TotalTasks
		body["completed_tasks"] = p.CompletedTasks
		result = append(result, body)
	}
	c.JSON(http.StatusOK, result)
}

// handleCreateProject creates a project owned by the caller.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectCreateRequest
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

	project, err := s.store.CreateProject(c.Request.Context(), models.Project{
		UserID:      currentUserID(c),
		Title:       *req.Title,
		Description: strOrEmpty(req.Description),
		DueDate:     dueDate,
	})
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, projectJSON(project))
}

// handleGetProject returns a single owned project.
func (s *Server) handleGetProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	project, err := s.store.GetProject(c.Request.Context(), currentUserID(c), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, projectJSON(project))
}

// handleUpdateProject applies a partial update: only keys present in the
// body change, and a null due_date clears the stored date.
func (s *Server) handleUpdateProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	patch := sqlite.ProjectPatch{
		Title:       stringField(body, "title"),
		Description: stringField(body, "description"),
	}
	set, due, err := dueDateField(body)
	if err != nil {
		respondDateError(c)
		return
	}
	patch.SetDueDate, patch.DueDate = set, due

	project, err := s.store.UpdateProject(c.Request.Context(), currentUserID(c), id, patch)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, projectJSON(project))
}

// handleDeleteProject removes an owned project together with its tasks.
func (s *Server) handleDeleteProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	err := s.store.DeleteProject(c.Request.Context(), currentUserID(c), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Project successfully deleted"})
}

// stringField extracts a string-valued key from a decoded body, nil when the
// key is absent or not a string.
func stringField(body map[string]any, key string) *string {
	if v, ok := body[key].(string); ok {
		return &v
	}
	return nil
}

// dueDateField reports whether the body carries a due_date key and what it
// parses to. A null or empty value clears the date; a malformed one errors.
func dueDateField(body map[string]any) (bool, *time.Time, error) {
	raw, present := body["due_date"]
	if !present {
		return false, nil, nil
	}
	switch v := raw.(type) {
	case nil:
		return true, nil, nil
	case string:
		t, err := timeutil.Parse(v)
		if err != nil {
			return false, nil, err
		}
		return true, t, nil
	default:
		return false, nil, timeutil.ErrInvalidDate
	}
}

func strOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
