// Package api serves the task store's HTTP/JSON contract.
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/storage"
)

const (
	maxBodySize = 64 << 10

	// HeaderIdempotencyKey carries the client's key for a create request.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Register wires up all API routes on the provided Echo instance. A nil
// auth serves every owner without checking tokens. A nil deduper ignores
// idempotency keys.
func Register(e *echo.Echo, store Storage, deduper Deduper, auth Authenticator, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{store: store, deduper: deduper, auth: auth, log: logger}
	e.GET("/tasks", h.listTasks)
	e.POST("/tasks", h.createTask)
	e.PUT("/tasks/:id", h.updateTask)
	e.DELETE("/tasks/:id", h.deleteTask)
	e.GET("/healthz", healthz)
}

type handlers struct {
	store   Storage
	deduper Deduper
	auth    Authenticator
	log     *log.Logger
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *handlers) listTasks(c echo.Context) error {
	owner := strings.TrimSpace(c.QueryParam("owner"))
	if owner == "" {
		return c.String(http.StatusBadRequest, "owner is required")
	}
	if err := h.authorize(c, owner); err != nil {
		return err
	}

	tasks, err := h.store.ListTasks(c.Request().Context(), owner)
	if err != nil {
		h.log.WithError(err).WithField("owner", owner).Error("list tasks failed")
		return c.String(http.StatusInternalServerError, "failed to list tasks")
	}
	out := make([]taskRecord, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskRecord(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handlers) createTask(c echo.Context) error {
	var req draftRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	owner := strings.TrimSpace(req.owner())
	if h.auth != nil && owner == "" {
		email, err := h.auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		owner = email
	}
	if owner == "" {
		return c.String(http.StatusBadRequest, domain.ErrMissingOwner.Error())
	}
	if err := h.authorize(c, owner); err != nil {
		return err
	}
	draft, err := req.toDraft()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if key != "" && h.deduper != nil {
		existingID, reserved, err := h.deduper.Reserve(ctx, owner, key)
		switch {
		case errors.Is(err, storage.ErrInFlight):
			return c.String(http.StatusConflict, err.Error())
		case err != nil:
			h.log.WithError(err).Error("idempotency reserve failed")
			return c.String(http.StatusInternalServerError, "failed to create task")
		case !reserved:
			existing, err := h.store.GetTask(ctx, existingID)
			if err == nil {
				return c.JSON(http.StatusOK, newTaskRecord(existing))
			}
			if !errors.Is(err, storage.ErrNotFound) {
				h.log.WithError(err).WithField("task", existingID).Error("idempotent replay lookup failed")
				return c.String(http.StatusInternalServerError, "failed to create task")
			}
			// The earlier task was deleted since; the key no longer protects anything.
			_ = h.deduper.Remove(ctx, owner, key)
			return c.String(http.StatusConflict, "idempotency key already used")
		}
	}

	created, err := h.store.CreateTask(ctx, draft.Task(owner, ""))
	if err != nil {
		if key != "" && h.deduper != nil {
			if rerr := h.deduper.Remove(ctx, owner, key); rerr != nil {
				h.log.WithError(rerr).Warn("idempotency rollback failed")
			}
		}
		h.log.WithError(err).WithField("owner", owner).Error("create task failed")
		return c.String(http.StatusInternalServerError, "failed to create task")
	}
	if key != "" && h.deduper != nil {
		if err := h.deduper.Remember(ctx, owner, key, created.ID); err != nil {
			h.log.WithError(err).WithField("task", created.ID).Warn("idempotency remember failed")
		}
	}
	h.log.WithFields(log.Fields{"task": created.ID, "owner": owner}).Debug("task created")
	return c.JSON(http.StatusCreated, newTaskRecord(created))
}

func (h *handlers) updateTask(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	var req patchRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	patch, err := req.toPatch()
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := h.authorizeTask(c, id); err != nil {
		return err
	}

	updated, err := h.store.UpdateTask(ctx, id, patch)
	if err != nil {
		return h.storeError(c, id, err)
	}
	return c.JSON(http.StatusOK, newTaskRecord(updated))
}

func (h *handlers) deleteTask(c echo.Context) error {
	id := c.Param("id")
	if err := h.authorizeTask(c, id); err != nil {
		return err
	}
	if _, err := h.store.DeleteTask(c.Request().Context(), id); err != nil {
		return h.storeError(c, id, err)
	}
	return c.JSON(http.StatusOK, deleteResponse{Deleted: 1})
}

// authorize checks that the caller's token belongs to owner.
func (h *handlers) authorize(c echo.Context, owner string) error {
	if h.auth == nil {
		return nil
	}
	email, err := h.auth.EmailFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if !strings.EqualFold(email, owner) {
		return c.String(http.StatusForbidden, errOwnerMismatch.Error())
	}
	return nil
}

func (h *handlers) authorizeTask(c echo.Context, id string) error {
	if h.auth == nil {
		return nil
	}
	current, err := h.store.GetTask(c.Request().Context(), id)
	if err != nil {
		return h.storeError(c, id, err)
	}
	return h.authorize(c, current.OwnerEmail)
}

func (h *handlers) storeError(c echo.Context, id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.String(http.StatusNotFound, "task not found")
	case isValidationError(err):
		return c.String(http.StatusBadRequest, err.Error())
	default:
		h.log.WithError(err).WithField("task", id).Error("task store request failed")
		return c.String(http.StatusInternalServerError, "task store error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		domain.ErrEmptyTitle,
		domain.ErrTitleTooLong,
		domain.ErrDescriptionTooLong,
		domain.ErrInvalidCategory,
		domain.ErrInvalidDate,
		domain.ErrInvalidTime,
		domain.ErrOwnerImmutable,
		domain.ErrEmptyPatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}
