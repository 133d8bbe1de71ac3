package access

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor))
	g.GET("/patients/:id/doctors", h.ListDoctors)
	g.POST("/patients/:id/doctors", h.GrantDoctor)
	g.DELETE("/patients/:id/doctors/:doctorId", h.RevokeDoctor)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("id", "invalid id"))
	}
	doctors, err := h.svc.ListDoctors(c.Request().Context(), actor, patientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": doctors})
}

func (h *Handler) GrantDoctor(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("id", "invalid id"))
	}
	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("body", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	g, err := h.svc.GrantByUsername(c.Request().Context(), actor, patientID, req.Username)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "access granted",
		"data":    g,
	})
}

func (h *Handler) RevokeDoctor(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("id", "invalid id"))
	}
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("doctor_id", "invalid id"))
	}
	if err := h.svc.Revoke(c.Request().Context(), actor, patientID, doctorID); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "access revoked"})
}
