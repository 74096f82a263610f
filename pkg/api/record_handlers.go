package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/medirover/controller/pkg/log"
	"github.com/medirover/controller/pkg/store"
)

// Records is the waypoint and map store
type Records interface {
	CreateWaypoint(ctx context.Context, w *store.Waypoint) error
	GetWaypoint(ctx context.Context, id int64) (*store.Waypoint, error)
	ListWaypoints(ctx context.Context) ([]*store.Waypoint, error)
	UpdateWaypoint(ctx context.Context, w *store.Waypoint) error
	DeleteWaypoint(ctx context.Context, id int64) error
	CreateMap(ctx context.Context, m *store.Map) error
	GetMap(ctx context.Context, id int64) (*store.Map, error)
	ListMaps(ctx context.Context) ([]*store.Map, error)
	DeleteMap(ctx context.Context, id int64) error
}

// RecordHandler holds dependencies for waypoint and map endpoints
type RecordHandler struct {
	records Records
	logger  customlog.Logger
}

// RegisterRecordRoutes registers /api/v1/waypoints and /api/v1/maps
func RegisterRecordRoutes(app *fiber.App, records Records, logger customlog.Logger) {
	h := &RecordHandler{records: records, logger: customlog.OrDefault(logger)}

	wp := app.Group("/api/v1/waypoints")
	wp.Get("/", h.listWaypoints)
	wp.Post("/", h.createWaypoint)
	wp.Get("/:id", h.getWaypoint)
	wp.Put("/:id", h.updateWaypoint)
	wp.Delete("/:id", h.deleteWaypoint)

	maps := app.Group("/api/v1/maps")
	maps.Get("/", h.listMaps)
	maps.Post("/", h.createMap)
	maps.Get("/:id", h.getMap)
	maps.Delete("/:id", h.deleteMap)

	h.logger.Infof("Registered record API endpoints under /api/v1/waypoints and /api/v1/maps")
}

// storeError maps store errors to HTTP statuses
func (h *RecordHandler) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateName):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidRecord):
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	h.logger.Errorf("Record store error on %s %s: %v", c.Method(), c.Path(), err)
	return fail(c, fiber.StatusInternalServerError, "record store error")
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return int64(id), nil
}

func (h *RecordHandler) listWaypoints(c *fiber.Ctx) error {
	list, err := h.records.ListWaypoints(c.UserContext())
	if err != nil {
		return h.storeError(c, err)
	}
	return ok(c, list)
}

func (h *RecordHandler) createWaypoint(c *fiber.Ctx) error {
	var w store.Waypoint
	if err := c.BodyParser(&w); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	w.ID = 0
	if err := h.records.CreateWaypoint(c.UserContext(), &w); err != nil {
		return h.storeError(c, err)
	}
	return created(c, w)
}

func (h *RecordHandler) getWaypoint(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	w, err := h.records.GetWaypoint(c.UserContext(), id)
	if err != nil {
		return h.storeError(c, err)
	}
	return ok(c, w)
}

func (h *RecordHandler) updateWaypoint(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var w store.Waypoint
	if err := c.BodyParser(&w); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	w.ID = id
	if err := h.records.UpdateWaypoint(c.UserContext(), &w); err != nil {
		return h.storeError(c, err)
	}
	return ok(c, w)
}

func (h *RecordHandler) deleteWaypoint(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.records.DeleteWaypoint(c.UserContext(), id); err != nil {
		return h.storeError(c, err)
	}
	return ok(c, nil)
}

func (h *RecordHandler) listMaps(c *fiber.Ctx) error {
	list, err := h.records.ListMaps(c.UserContext())
	if err != nil {
		return h.storeError(c, err)
	}
	return ok(c, list)
}

func (h *RecordHandler) createMap(c *fiber.Ctx) error {
	var m store.Map
	if err := c.BodyParser(&m); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	m.ID = 0
	if err := h.records.CreateMap(c.UserContext(), &m); err != nil {
		return h.storeError(c, err)
	}
	return created(c, m)
}

func (h *RecordHandler) getMap(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	m, err := h.records.GetMap(c.UserContext(), id)
	if err != nil {
		return h.storeError(c, err)
	}
	return ok(c, m)
}

func (h *RecordHandler) deleteMap(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.records.DeleteMap(c.UserContext(), id); err != nil {
		return h.storeError(c, err)
	}
	return ok(c, nil)
}
