// Tank endpoints and the derived dashboard views:
//   - GET  /tanks          (list, weak ETag support)
//   - POST /tanks          (create)
//   - PUT  /tanks/:id      (update)
//   - GET  /kpis, /alerts, /monthly-usage, /reports
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aquamind/go-tank-backend/internal/domain"
	"github.com/aquamind/go-tank-backend/internal/http/middleware"
	"github.com/aquamind/go-tank-backend/internal/repo"
	"github.com/aquamind/go-tank-backend/internal/services"
)

// TankService defines tank CRUD and the derived views consumed by handlers.
type TankService interface {
	List(ctx context.Context, userID string) ([]domain.Tank, error)
	Create(ctx context.Context, userID string, in services.CreateTankInput) (*domain.Tank, error)
	Update(ctx context.Context, userID, id string, in services.UpdateTankInput) (*domain.Tank, error)
	KPIs(ctx context.Context, userID string) (*services.KPIs, error)
	Alerts(ctx context.Context, userID string) ([]services.Alert, error)
	MonthlyUsage(ctx context.Context, userID string) ([]services.MonthUsage, error)
	Report(ctx context.Context, userID string) (*services.Report, error)
}

// ListTanks handles GET /tanks with a weak ETag computed from the owner's
// tank count and newest update; If-None-Match hits return 304 without
// loading rows.
func (h *Handlers) ListTanks(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.tankSvc.(*services.TankService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.TanksStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"tanks:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	tanks, err := h.tankSvc.List(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list tanks")
		return
	}
	ok(c, http.StatusOK, tanks)
}

// CreateTank handles POST /tanks.
func (h *Handlers) CreateTank(c *gin.Context) {
	var req services.CreateTankInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid tank payload")
		return
	}
	tank, err := h.tankSvc.Create(c.Request.Context(), middleware.UserID(c), req)
	if services.IsValidation(err) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "failed to create tank")
		return
	}
	ok(c, http.StatusCreated, tank)
}

// UpdateTank handles PUT /tanks/:id.
func (h *Handlers) UpdateTank(c *gin.Context) {
	var req services.UpdateTankInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid tank payload")
		return
	}
	tank, err := h.tankSvc.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), req)
	switch {
	case err == nil:
	case services.IsValidation(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "tank not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to update tank")
		return
	}
	ok(c, http.StatusOK, tank)
}

// KPIs handles GET /kpis.
func (h *Handlers) KPIs(c *gin.Context) {
	k, err := h.tankSvc.KPIs(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to compute KPIs")
		return
	}
	ok(c, http.StatusOK, k)
}

// Alerts handles GET /alerts.
func (h *Handlers) Alerts(c *gin.Context) {
	alerts, err := h.tankSvc.Alerts(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to derive alerts")
		return
	}
	ok(c, http.StatusOK, alerts)
}

// MonthlyUsage handles GET /monthly-usage.
func (h *Handlers) MonthlyUsage(c *gin.Context) {
	months, err := h.tankSvc.MonthlyUsage(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to estimate usage")
		return
	}
	ok(c, http.StatusOK, months)
}

// Report handles GET /reports.
func (h *Handlers) Report(c *gin.Context) {
	rep, err := h.tankSvc.Report(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to build report")
		return
	}
	ok(c, http.StatusOK, rep)
}
