package clinical

import (
	"bytes"
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/pkg/pagination"
)

// chartCSP lets the rendered chart load the echarts bundle and run its
// inline initialisation script.
const chartCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://go-echarts.github.io; style-src 'self' 'unsafe-inline'"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor))
	g.GET("/visits/:id/records", h.GetVisitRecords)
	g.GET("/patients/:id/vitals/chart", h.VitalsChart)

	g.POST("/visits/:id/observations", createHandler(func() *Observation { return &Observation{} }, h.svc.CreateObservation))
	g.GET("/visits/:id/observations", listHandler(h.svc.ListObservations))
	g.GET("/observations/:id", getHandler(h.svc.GetObservation))
	g.PUT("/observations/:id", updateHandler(func() *Observation { return &Observation{} }, h.svc.UpdateObservation))
	g.DELETE("/observations/:id", deleteHandler(h.svc.DeleteObservation))

	g.POST("/visits/:id/allergies", createHandler(func() *AllergyIntolerance { return &AllergyIntolerance{} }, h.svc.CreateAllergy))
	g.GET("/visits/:id/allergies", listHandler(h.svc.ListAllergies))
	g.GET("/allergies/:id", getHandler(h.svc.GetAllergy))
	g.PUT("/allergies/:id", updateHandler(func() *AllergyIntolerance { return &AllergyIntolerance{} }, h.svc.UpdateAllergy))
	g.DELETE("/allergies/:id", deleteHandler(h.svc.DeleteAllergy))

	g.POST("/visits/:id/medications", createHandler(func() *MedicationStatement { return &MedicationStatement{} }, h.svc.CreateMedication))
	g.GET("/visits/:id/medications", listHandler(h.svc.ListMedications))
	g.GET("/medications/:id", getHandler(h.svc.GetMedication))
	g.PUT("/medications/:id", updateHandler(func() *MedicationStatement { return &MedicationStatement{} }, h.svc.UpdateMedication))
	g.DELETE("/medications/:id", deleteHandler(h.svc.DeleteMedication))

	g.POST("/visits/:id/immunizations", createHandler(func() *Immunization { return &Immunization{} }, h.svc.CreateImmunization))
	g.GET("/visits/:id/immunizations", listHandler(h.svc.ListImmunizations))
	g.GET("/immunizations/:id", getHandler(h.svc.GetImmunization))
	g.PUT("/immunizations/:id", updateHandler(func() *Immunization { return &Immunization{} }, h.svc.UpdateImmunization))
	g.DELETE("/immunizations/:id", deleteHandler(h.svc.DeleteImmunization))

	g.POST("/visits/:id/procedures", createHandler(func() *Procedure { return &Procedure{} }, h.svc.CreateProcedure))
	g.GET("/visits/:id/procedures", listHandler(h.svc.ListProcedures))
	g.GET("/procedures/:id", getHandler(h.svc.GetProcedure))
	g.PUT("/procedures/:id", updateHandler(func() *Procedure { return &Procedure{} }, h.svc.UpdateProcedure))
	g.DELETE("/procedures/:id", deleteHandler(h.svc.DeleteProcedure))

	g.POST("/visits/:id/vitals", createHandler(func() *Vitals { return &Vitals{} }, h.svc.CreateVitals))
	g.GET("/visits/:id/vitals", listHandler(h.svc.ListVitals))
	g.GET("/vitals/:id", getHandler(h.svc.GetVitals))
	g.PUT("/vitals/:id", updateHandler(func() *Vitals { return &Vitals{} }, h.svc.UpdateVitals))
	g.DELETE("/vitals/:id", deleteHandler(h.svc.DeleteVitals))

	g.POST("/visits/:id/medical-history", createHandler(func() *MedicalHistory { return &MedicalHistory{} }, h.svc.CreateMedicalHistory))
	g.GET("/visits/:id/medical-history", listHandler(h.svc.ListMedicalHistory))
	g.GET("/medical-history/:id", getHandler(h.svc.GetMedicalHistory))
	g.PUT("/medical-history/:id", updateHandler(func() *MedicalHistory { return &MedicalHistory{} }, h.svc.UpdateMedicalHistory))
	g.DELETE("/medical-history/:id", h.DeleteMedicalHistory)

	g.POST("/visits/:id/appointments", createHandler(func() *Appointment { return &Appointment{} }, h.svc.CreateAppointment))
	g.GET("/visits/:id/appointments", listHandler(h.svc.ListAppointments))
	g.GET("/appointments/:id", getHandler(h.svc.GetAppointment))
	g.PUT("/appointments/:id", updateHandler(func() *Appointment { return &Appointment{} }, h.svc.UpdateAppointment))
	g.DELETE("/appointments/:id", deleteHandler(h.svc.DeleteAppointment))
}

// actorAndID extracts the caller and the :id path parameter.
func actorAndID(c echo.Context) (auth.Actor, uuid.UUID, error) {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return auth.Actor{}, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Actor{}, uuid.Nil, apperr.Validation("id", "invalid id")
	}
	return actor, id, nil
}

func bindRecord[T record](c echo.Context, rec T) error {
	if err := c.Bind(rec); err != nil {
		return apperr.Validation("body", "invalid request body")
	}
	return c.Validate(rec)
}

func createHandler[T record](newRec func() T,
	create func(context.Context, auth.Actor, uuid.UUID, T) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, visitID, err := actorAndID(c)
		if err != nil {
			return apperr.HTTPError(err)
		}
		rec := newRec()
		if err := bindRecord(c, rec); err != nil {
			return apperr.HTTPError(err)
		}
		out, err := create(c.Request().Context(), actor, visitID, rec)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "message": "record created", "data": out})
	}
}

func getHandler[T record](get func(context.Context, auth.Actor, uuid.UUID) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, id, err := actorAndID(c)
		if err != nil {
			return apperr.HTTPError(err)
		}
		out, err := get(c.Request().Context(), actor, id)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": out})
	}
}

func updateHandler[T record](newRec func() T,
	update func(context.Context, auth.Actor, uuid.UUID, T) (T, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, id, err := actorAndID(c)
		if err != nil {
			return apperr.HTTPError(err)
		}
		rec := newRec()
		if err := bindRecord(c, rec); err != nil {
			return apperr.HTTPError(err)
		}
		out, err := update(c.Request().Context(), actor, id, rec)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "record updated", "data": out})
	}
}

func listHandler[T record](list func(context.Context, auth.Actor, uuid.UUID, pagination.Params) ([]T, int, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, visitID, err := actorAndID(c)
		if err != nil {
			return apperr.HTTPError(err)
		}
		p := pagination.FromContext(c)
		out, total, err := list(c.Request().Context(), actor, visitID, p)
		if err != nil {
			return apperr.HTTPError(err)
		}
		if out == nil {
			out = []T{}
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(out, total, p))
	}
}

func deleteResponse(c echo.Context, res DeleteResult) error {
	msg := "record deleted"
	if res.VisitDeleted {
		msg = "record deleted; the visit had no records left and was removed"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"visit_deleted": res.VisitDeleted,
		"message":       msg,
	})
}

func deleteHandler(del func(context.Context, auth.Actor, uuid.UUID) (DeleteResult, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, id, err := actorAndID(c)
		if err != nil {
			return apperr.HTTPError(err)
		}
		res, err := del(c.Request().Context(), actor, id)
		if err != nil {
			return apperr.HTTPError(err)
		}
		return deleteResponse(c, res)
	}
}

func (h *Handler) DeleteMedicalHistory(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("body", "invalid request body"))
	}
	res, err := h.svc.DeleteMedicalHistory(c.Request().Context(), actor, id, req.ConfirmName)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return deleteResponse(c, res)
}

func (h *Handler) GetVisitRecords(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	out, err := h.svc.VisitRecords(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": out})
}

func (h *Handler) VitalsChart(c echo.Context) error {
	actor, patientID, err := actorAndID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var buf bytes.Buffer
	if err := h.svc.RenderVitalsChart(c.Request().Context(), actor, patientID, c.QueryParam("type"), &buf); err != nil {
		return apperr.HTTPError(err)
	}
	c.Response().Header().Set("Content-Security-Policy", chartCSP)
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
