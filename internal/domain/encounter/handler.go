package encounter

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor))
	g.GET("/patients/:id/visits", h.ListVisits)
	g.POST("/patients/:id/visits", h.CreateVisit)
	g.GET("/visits/:id", h.GetVisit)
	g.PUT("/visits/:id", h.UpdateVisit)
	g.DELETE("/visits/:id", h.DeleteVisit)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "invalid id")
	}
	return id, nil
}

func bindInput(c echo.Context) (VisitInput, error) {
	var in VisitInput
	if err := c.Bind(&in); err != nil {
		return in, apperr.Validation("body", "invalid request body")
	}
	if err := c.Validate(&in); err != nil {
		return in, err
	}
	return in, nil
}

func (h *Handler) CreateVisit(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	in, err := bindInput(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	v, err := h.svc.Create(c.Request().Context(), actor, patientID, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "message": "visit created", "data": v})
}

func (h *Handler) GetVisit(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	v, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": v})
}

func (h *Handler) UpdateVisit(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	in, err := bindInput(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	v, err := h.svc.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "visit updated", "data": v})
}

func (h *Handler) DeleteVisit(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("body", "invalid request body"))
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id, req.ConfirmName); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "visit deleted"})
}

func (h *Handler) ListVisits(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p := pagination.FromContext(c)
	visits, total, err := h.svc.ListByPatient(c.Request().Context(), actor, patientID, p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(visits, total, p))
}
