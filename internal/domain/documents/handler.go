package documents

import (
	"mime"
	"net/http"
	"strconv"

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
	g.POST("/patients/:id/documents", h.Upload)
	g.GET("/patients/:id/documents", h.List)
	g.GET("/documents/:id/content", h.Download)
	g.DELETE("/documents/:id", h.Delete)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id", "invalid id")
	}
	return id, nil
}

func (h *Handler) Upload(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.HTTPError(apperr.Validation("file", "a file is required"))
	}

	in := UploadInput{Category: c.FormValue("category"), FileName: fh.Filename}
	if v := c.FormValue("visit_id"); v != "" {
		visitID, err := uuid.Parse(v)
		if err != nil {
			return apperr.HTTPError(apperr.Validation("visit_id", "invalid id"))
		}
		in.VisitID = &visitID
	}
	if d := c.FormValue("description"); d != "" {
		if len(d) > 255 {
			return apperr.HTTPError(apperr.Validation("description", "must be at most 255 characters"))
		}
		in.Description = &d
	}

	f, err := fh.Open()
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer f.Close()

	doc, err := h.svc.Upload(c.Request().Context(), actor, patientID, in, f)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"success": true, "message": "file uploaded", "data": doc})
}

func (h *Handler) List(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	patientID, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	p := pagination.FromContext(c)
	docs, total, err := h.svc.List(c.Request().Context(), actor, patientID, c.QueryParam("category"), p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(docs, total, p))
}

func (h *Handler) Download(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	doc, rc, err := h.svc.Open(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer rc.Close()

	header := c.Response().Header()
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	header.Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, doc.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	actor, err := auth.ActorFrom(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	id, err := pathID(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "file deleted"})
}
