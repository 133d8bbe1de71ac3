package survey

import (
	"net/http"

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
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/survey", h.GetSurvey)
	doctor.POST("/survey", h.SubmitSurvey)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/surveys", h.ListSurveys)
}

func (h *Handler) GetSurvey(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	resp, err := h.svc.Get(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"questions": Questions,
			"submitted": resp != nil,
			"response":  resp,
		},
	})
}

func (h *Handler) SubmitSurvey(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("body", "invalid request body"))
	}
	if err := c.Validate(&req); err != nil {
		return apperr.HTTPError(err)
	}
	resp, err := h.svc.Submit(c.Request().Context(), actor, req.Answers)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "thank you for completing the survey",
		"data":    resp,
	})
}

func (h *Handler) ListSurveys(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	summary, err := h.svc.Summary(c.Request().Context(), actor, pagination.FromContext(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": summary})
}
