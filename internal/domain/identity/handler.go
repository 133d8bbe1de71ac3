package identity

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/pkg/pagination"
)

// VisitLister supplies the visits shown on the patient page.
type VisitLister interface {
	ListByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, p pagination.Params) ([]*encounter.Visit, int, error)
}

type Handler struct {
	accounts *AccountService
	patients *PatientService
	visits   VisitLister
}

func NewHandler(accounts *AccountService, patients *PatientService, visits VisitLister) *Handler {
	return &Handler{accounts: accounts, patients: patients, visits: visits}
}

// RegisterRoutes mounts the account, patient and admin routes. authLimit is
// applied to the unauthenticated /auth endpoints.
func (h *Handler) RegisterRoutes(api *echo.Group, authLimit ...echo.MiddlewareFunc) {
	public := api.Group("/auth", authLimit...)
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/password-reset", h.RequestPasswordReset)
	public.POST("/password-reset/:token", h.ResetPassword)
	api.POST("/auth/logout", h.Logout)

	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/account", h.GetAccount)
	doctor.PUT("/account", h.UpdateAccount)
	doctor.POST("/account/image", h.UploadProfileImage)
	doctor.GET("/patients", h.ListPatients)
	doctor.POST("/patients", h.CreatePatient)
	doctor.GET("/patients/:id", h.GetPatient)
	doctor.PUT("/patients/:id", h.UpdatePatient)
	doctor.DELETE("/patients/:id", h.DeletePatient)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/users", h.ListUsers)
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("body", "invalid request body")
	}
	return c.Validate(dst)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "invalid id")
	}
	return id, nil
}

// -- Auth --

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	u, err := h.accounts.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "your account has been created, you can now log in",
		"data":    u,
	})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	res, err := h.accounts.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": res})
}

func (h *Handler) Logout(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if err := h.accounts.Logout(c.Request().Context(), actor); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "logged out"})
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req PasswordResetRequest
	if err := bind(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	if err := h.accounts.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "an email has been sent with instructions to reset your password",
	})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req PasswordResetConfirm
	if err := bind(c, &req); err != nil {
		return apperr.HTTPError(err)
	}
	if err := h.accounts.ResetPassword(c.Request().Context(), c.Param("token"), req); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "your password has been updated"})
}

// -- Account --

func (h *Handler) GetAccount(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	u, err := h.accounts.GetAccount(c.Request().Context(), actor)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": u})
}

func (h *Handler) UpdateAccount(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var in AccountUpdate
	if err := bind(c, &in); err != nil {
		return apperr.HTTPError(err)
	}
	u, err := h.accounts.UpdateAccount(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "your account has been updated", "data": u})
}

func (h *Handler) UploadProfileImage(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return apperr.HTTPError(apperr.Validation("image", "an image file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer f.Close()

	u, err := h.accounts.SetProfileImage(c.Request().Context(), actor, f)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "profile image updated", "data": u})
}

// -- Patients --

func (h *Handler) ListPatients(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p := pagination.FromContext(c)
	patients, total, err := h.patients.List(c.Request().Context(), actor, p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p))
}

func (h *Handler) CreatePatient(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var in PatientInput
	if err := bind(c, &in); err != nil {
		return apperr.HTTPError(err)
	}
	p, err := h.patients.Create(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "message": "patient created", "data": p})
}

func (h *Handler) GetPatient(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ctx := c.Request().Context()
	p, err := h.patients.Get(ctx, actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	data := map[string]interface{}{"patient": p}
	if h.visits != nil {
		vp := pagination.FromContext(c)
		visits, total, err := h.visits.ListByPatient(ctx, actor, id, vp)
		if err != nil {
			return apperr.HTTPError(err)
		}
		data["visits"] = pagination.NewResponse(visits, total, vp)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var in PatientInput
	if err := bind(c, &in); err != nil {
		return apperr.HTTPError(err)
	}
	p, err := h.patients.Update(c.Request().Context(), actor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "patient updated", "data": p})
}

func (h *Handler) DeletePatient(c echo.Context) error {
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
	if err := h.patients.Delete(c.Request().Context(), actor, id, req.ConfirmName); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "patient deleted"})
}

// -- Admin --

func (h *Handler) ListUsers(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p := pagination.FromContext(c)
	users, total, err := h.accounts.ListUsers(c.Request().Context(), actor, p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p))
}
