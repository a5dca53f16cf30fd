package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/internal/application"
	repo "github.com/oksasatya/go-user-auth/internal/domain/repository"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/response"
)

type UserHandler struct {
	Svc    *application.UserService
	Logger *logrus.Logger
}

func NewUserHandler(svc *application.UserService, logger *logrus.Logger) *UserHandler {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &UserHandler{Svc: svc, Logger: logger}
}

type listQuery struct {
	Limit  int `form:"limit" json:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" json:"offset" binding:"omitempty,min=0"`
}

type searchQuery struct {
	Q     string `form:"q" json:"q"`
	Limit int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=50"`
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"omitempty,strongpwd"`
	Age      *int   `json:"age" binding:"omitempty,min=0,max=150"`
	Role     string `json:"role" binding:"omitempty,role"`
	Active   *bool  `json:"active"`
}

type updateUserRequest struct {
	Name   *string `json:"name" binding:"omitempty,max=100"`
	Email  *string `json:"email" binding:"omitempty,email"`
	Age    *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Role   *string `json:"role" binding:"omitempty,role"`
	Active *bool   `json:"active"`
}

// List GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	users, err := h.Svc.List(c.Request.Context(), repo.ListFilter{Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, users, "users", gin.H{"count": len(users), "limit": q.Limit, "offset": q.Offset})
}

// Search GET /api/users/search?q=
func (h *UserHandler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	users, err := h.Svc.Search(c.Request.Context(), q.Q, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, users, "search results", gin.H{"count": len(users)})
}

// Create POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	u, err := h.Svc.Create(c.Request.Context(), application.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
		Role:     req.Role,
		Active:   req.Active,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, u, "User created successfully", nil)
}

// Get GET /api/users/:id
// Admins may read anyone; other callers only themselves.
func (h *UserHandler) Get(c *gin.Context) {
	requester, _ := middleware.CurrentUser(c)
	u, err := h.Svc.Get(c.Request.Context(), requester, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, u, "user", nil)
}

// Update PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(middleware.BindError(err))
		return
	}
	u, err := h.Svc.Update(c.Request.Context(), c.Param("id"), application.UpdateUserInput{
		Name:   req.Name,
		Email:  req.Email,
		Age:    req.Age,
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, u, "User updated successfully", nil)
}

// Delete DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.Svc.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	if actor, ok := middleware.CurrentUser(c); ok {
		h.Logger.WithFields(logrus.Fields{"user_id": id, "actor_id": actor.ID}).Info("user removed by admin")
	}
	response.Success[any](c, http.StatusOK, nil, "User deleted successfully", nil)
}
