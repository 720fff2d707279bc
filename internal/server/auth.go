package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/auth"
	"taskhub/internal/storage/sqlite"
	"taskhub/internal/timeutil"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates a new account. Username collisions are reported
// before email collisions.
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, email and password are required"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	_, err = s.store.CreateUser(c.Request.Context(), req.Username, req.Email, hash)
	switch {
	case errors.Is(err, sqlite.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username already exists"})
		return
	case errors.Is(err, sqlite.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
		return
	case err != nil:
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"msg": "Registration successful"})
}

// handleLogin checks credentials and issues an access token. Unknown user
// and wrong password produce identical responses; the real reason only goes
// to the log.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := s.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.logger.Info("login failed", slog.String("username", req.Username), slog.Bool("user_exists", err == nil))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, tokenTTL)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// handleGetUser returns the authenticated account. The id can stop resolving
// if the account disappears after the token was issued.
func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.store.GetUser(c.Request.Context(), currentUserID(c))
	if errors.Is(err, sqlite.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": timeutil.Format(&user.CreatedAt),
	})
}
