// Package api exposes the board store over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/board"
	"prism-board/domain"
)

const maxBodySize = 1 << 20

// Register wires up all board routes on the provided Echo instance.
func Register(e *echo.Echo, store BoardStore, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/healthz", healthz(store))
	e.GET("/api/board", getBoard(store))
	e.GET("/api/status", getStatus(store))
	e.GET("/api/stream", streamBoard(store, logger))

	e.POST("/api/tasks", addTask(store))
	e.PATCH("/api/tasks/:id", updateTask(store))
	e.DELETE("/api/tasks/:id", deleteTask(store))
	e.POST("/api/tasks/:id/move", moveTask(store))
	e.POST("/api/tasks/:id/checklist", addChecklistItem(store))
	e.PATCH("/api/tasks/:id/checklist/:itemId", updateChecklistItem(store))
	e.DELETE("/api/tasks/:id/checklist/:itemId", deleteChecklistItem(store))

	e.POST("/api/categories", addCategory(store))
	e.PATCH("/api/categories/:id", updateCategory(store))
	e.DELETE("/api/categories/:id", deleteCategory(store))
	e.POST("/api/categories/:id/reorder", reorderCategory(store))

	e.POST("/api/timeframes", addTimeframe(store))
	e.PATCH("/api/timeframes/:id", updateTimeframe(store))
	e.DELETE("/api/timeframes/:id", deleteTimeframe(store))
	e.POST("/api/timeframes/:id/reorder", reorderTimeframe(store))

	e.PUT("/api/selection", putSelection(store))
}

func healthz(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store.Board() == nil {
			return c.String(http.StatusServiceUnavailable, "loading")
		}
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := store.Board()
		if b == nil {
			return loading(c)
		}
		data, err := domain.MarshalDocument(b)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func getStatus(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, statusResponse{
			Status:         store.SyncStatus(),
			Loading:        store.Board() == nil,
			SelectedTaskID: store.SelectedTaskID(),
		})
	}
}

func addTask(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		if store.Board() == nil {
			return loading(c)
		}
		id, err := store.AddTask(board.NewTask{
			Title:       req.Title,
			Notes:       req.Notes,
			Status:      req.Status,
			Assignee:    req.Assignee,
			Priority:    req.Priority,
			CategoryID:  req.CategoryID,
			TimeframeID: req.TimeframeID,
			DueDate:     req.DueDate,
			Checklist:   req.Checklist,
		})
		return created(c, id, err)
	}
}

func updateTask(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskPatchRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		id := c.Param("id")
		if resp := requireTask(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.UpdateTask(id, req.patch()))
	}
}

func deleteTask(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if resp := requireTask(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.DeleteTask(id))
	}
}

func moveTask(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		id := c.Param("id")
		b := store.Board()
		if b == nil {
			return loading(c)
		}
		if b.TaskIndex(id) < 0 || b.CategoryIndex(req.CategoryID) < 0 || b.TimeframeIndex(req.TimeframeID) < 0 {
			return notFound(c)
		}
		return done(c, store.MoveTask(id, req.CategoryID, req.TimeframeID))
	}
}

func addChecklistItem(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req checklistRequest
		if err := decode(c, &req); err != nil || req.Title == nil {
			return badBody(c)
		}
		id := c.Param("id")
		if resp := requireTask(c, store, id); resp != nil {
			return resp()
		}
		itemID, err := store.AddChecklistItem(id, *req.Title)
		return created(c, itemID, err)
	}
}

func updateChecklistItem(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req checklistRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		id, itemID := c.Param("id"), c.Param("itemId")
		if resp := requireChecklistItem(c, store, id, itemID); resp != nil {
			return resp()
		}
		return done(c, store.UpdateChecklistItem(id, itemID, board.ChecklistPatch{Title: req.Title, Completed: req.Completed}))
	}
}

func deleteChecklistItem(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, itemID := c.Param("id"), c.Param("itemId")
		if resp := requireChecklistItem(c, store, id, itemID); resp != nil {
			return resp()
		}
		return done(c, store.DeleteChecklistItem(id, itemID))
	}
}

func addCategory(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decode(c, &req); err != nil || req.Name == nil {
			return badBody(c)
		}
		if store.Board() == nil {
			return loading(c)
		}
		id, err := store.AddCategory(*req.Name)
		return created(c, id, err)
	}
}

func updateCategory(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req nameRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		id := c.Param("id")
		if resp := requireCategory(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.UpdateCategory(id, board.CategoryPatch{Name: req.Name}))
	}
}

func deleteCategory(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if resp := requireCategory(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.DeleteCategory(id))
	}
}

func reorderCategory(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		dir, resp := direction(c)
		if resp != nil {
			return resp()
		}
		if resp := requireCategory(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.ReorderCategory(id, dir))
	}
}

func addTimeframe(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req timeframeRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		if store.Board() == nil {
			return loading(c)
		}
		id, err := store.AddTimeframe(board.NewTimeframe{
			Name:      req.Name,
			Hidden:    req.Hidden,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
		})
		return created(c, id, err)
	}
}

func updateTimeframe(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req timeframePatchRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		id := c.Param("id")
		if resp := requireTimeframe(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.UpdateTimeframe(id, req.patch()))
	}
}

func deleteTimeframe(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if resp := requireTimeframe(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.DeleteTimeframe(id))
	}
}

func reorderTimeframe(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		dir, resp := direction(c)
		if resp != nil {
			return resp()
		}
		if resp := requireTimeframe(c, store, id); resp != nil {
			return resp()
		}
		return done(c, store.ReorderTimeframe(id, dir))
	}
}

func putSelection(store BoardStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req selectionRequest
		if err := decode(c, &req); err != nil {
			return badBody(c)
		}
		if req.TaskID != "" {
			if resp := requireTask(c, store, req.TaskID); resp != nil {
				return resp()
			}
		}
		store.SelectTask(req.TaskID)
		return c.NoContent(http.StatusNoContent)
	}
}

func decode(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func direction(c echo.Context) (board.Direction, func() error) {
	var req reorderRequest
	if err := decode(c, &req); err != nil {
		return 0, func() error { return badBody(c) }
	}
	dir, err := board.ParseDirection(req.Direction)
	if err != nil {
		return 0, func() error { return done(c, err) }
	}
	return dir, nil
}

func requireTask(c echo.Context, store BoardStore, id string) func() error {
	return require(c, store, func(b *domain.Board) bool { return b.TaskIndex(id) >= 0 })
}

func requireCategory(c echo.Context, store BoardStore, id string) func() error {
	return require(c, store, func(b *domain.Board) bool { return b.CategoryIndex(id) >= 0 })
}

func requireTimeframe(c echo.Context, store BoardStore, id string) func() error {
	return require(c, store, func(b *domain.Board) bool { return b.TimeframeIndex(id) >= 0 })
}

func requireChecklistItem(c echo.Context, store BoardStore, taskID, itemID string) func() error {
	return require(c, store, func(b *domain.Board) bool {
		i := b.TaskIndex(taskID)
		if i < 0 {
			return false
		}
		for _, item := range b.Tasks[i].Checklist {
			if item.ID == itemID {
				return true
			}
		}
		return false
	})
}

// require returns a response writer when the board is not loaded or exists
// reports false, nil otherwise.
func require(c echo.Context, store BoardStore, exists func(*domain.Board) bool) func() error {
	b := store.Board()
	if b == nil {
		return func() error { return loading(c) }
	}
	if !exists(b) {
		return func() error { return notFound(c) }
	}
	return nil
}

func created(c echo.Context, id string, err error) error {
	if err != nil {
		return done(c, err)
	}
	if id == "" {
		return notFound(c)
	}
	return c.JSON(http.StatusCreated, createdResponse{ID: id})
}

func done(c echo.Context, err error) error {
	if err == nil {
		return c.NoContent(http.StatusNoContent)
	}
	var verr *board.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
}

func loading(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "board is loading"})
}
