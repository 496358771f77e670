package handlers

import (
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/ytakahashi/todo-api/internal/models"
	"github.com/ytakahashi/todo-api/internal/services"
)

type TodoHandler struct {
	repo   services.TodoRepository
	logger *log.Logger
}

func NewTodoHandler(repo services.TodoRepository, logger *log.Logger) *TodoHandler {
	return &TodoHandler{
		repo:   repo,
		logger: logger,
	}
}

func (h *TodoHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/todos", h.List)
	e.POST("/todos", h.Create)
	e.GET("/todos/:id", h.Get)
	e.PUT("/todos/:id", h.Update)
	e.DELETE("/todos/:id", h.Delete)
}

func (h *TodoHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *TodoHandler) List(c echo.Context) error {
	todos, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	if todos == nil {
		todos = []models.Todo{}
	}
	return c.JSON(http.StatusOK, todos)
}

func (h *TodoHandler) Create(c echo.Context) error {
	var in models.CreateInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}

	todo, err := h.repo.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	h.logger.Debug("todo created", "id", todo.ID)
	return c.JSON(http.StatusCreated, todo)
}

func (h *TodoHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	todo, err := h.repo.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var in models.UpdateInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}

	todo, err := h.repo.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	h.logger.Debug("todo deleted", "id", id)
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
