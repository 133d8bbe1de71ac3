package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mdhs/ehr/internal/domain/access"
	"github.com/mdhs/ehr/internal/domain/encounter"
	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
	"github.com/mdhs/ehr/internal/platform/blobstore"
	"github.com/mdhs/ehr/internal/platform/db"
	"github.com/mdhs/ehr/pkg/pagination"
)

// VisitFinder resolves the optional visit a document is attached to.
type VisitFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*encounter.Visit, error)
}

type Service struct {
	repo    Repository
	visits  VisitFinder
	guard   *access.Guard
	blobs   blobstore.Store
	maxSize int64
	logger  zerolog.Logger
}

func NewService(repo Repository, visits VisitFinder, guard *access.Guard, blobs blobstore.Store, maxSize int64, logger zerolog.Logger) *Service {
	return &Service{repo: repo, visits: visits, guard: guard, blobs: blobs, maxSize: maxSize, logger: logger}
}

func cleanFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}

// Upload stores content for the patient. The content type is sniffed from
// the bytes and must be a png, jpeg, pdf or plain text file.
func (s *Service) Upload(ctx context.Context, actor auth.Actor, patientID uuid.UUID, in UploadInput, content io.Reader) (*Document, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, err
	}
	if in.Category == "" {
		in.Category = CategoryDocument
	}
	if !validCategories[in.Category] {
		return nil, apperr.Validation("category", "invalid category: "+in.Category)
	}
	if in.VisitID != nil {
		v, err := s.visits.GetByID(ctx, *in.VisitID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("find visit: %w", err)
		}
		if v == nil || v.PatientID != patientID {
			return nil, apperr.Validation("visit_id", "visit does not belong to this patient")
		}
	}

	d := &Document{
		ID:          uuid.New(),
		PatientID:   patientID,
		VisitID:     in.VisitID,
		Category:    in.Category,
		FileName:    cleanFileName(in.FileName),
		Description: in.Description,
		UploadedBy:  actor.UserID,
	}
	obj, err := blobstore.Upload(ctx, s.blobs, path.Join("patients", patientID.String()), d.ID.String(),
		content, s.maxSize, blobstore.DocumentTypes)
	if err != nil {
		return nil, blobstore.ValidationError("file", err, s.maxSize)
	}
	d.ContentType = obj.ContentType
	d.SizeBytes = obj.Size
	d.SHA256 = obj.SHA256
	d.StoragePath = obj.Path

	if err := s.repo.Create(ctx, d); err != nil {
		s.removeBlob(ctx, obj.Path)
		if constraint, ok := db.ForeignKeyViolation(err); ok {
			if strings.Contains(constraint, "visit_id") {
				return nil, apperr.NotFound("visit")
			}
			return nil, apperr.NotFound("patient")
		}
		return nil, fmt.Errorf("save document: %w", err)
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, patientID uuid.UUID, category string, p pagination.Params) ([]*Document, int, error) {
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return nil, 0, err
	}
	if category != "" && !validCategories[category] {
		return nil, 0, apperr.Validation("category", "invalid category: "+category)
	}
	return s.repo.ListByPatient(ctx, patientID, category, p.Limit, p.Offset)
}

func (s *Service) get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Document, error) {
	if err := s.guard.RequireRole(actor, auth.RoleDoctor); err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AuthorizePatient(ctx, actor, d.PatientID); err != nil {
		return nil, err
	}
	return d, nil
}

// Open returns the document and a reader over its content. The caller closes
// the reader.
func (s *Service) Open(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, d.StoragePath)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Str("document_id", id.String()).Str("path", d.StoragePath).Msg("document content missing")
		return nil, nil, apperr.NotFound("document content")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open document: %w", err)
	}
	return d, rc, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	d, err := s.get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeBlob(ctx, d.StoragePath)
	return nil
}

// StoragePaths lists the blobs of a patient so they can be removed once the
// patient row is gone.
func (s *Service) StoragePaths(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	return s.repo.StoragePaths(ctx, patientID)
}

// RemoveBlobs deletes the given blobs. Failures are logged and skipped.
func (s *Service) RemoveBlobs(ctx context.Context, paths []string) {
	for _, p := range paths {
		s.removeBlob(ctx, p)
	}
}

func (s *Service) removeBlob(ctx context.Context, p string) {
	if err := s.blobs.Delete(ctx, p); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Warn().Err(err).Str("path", p).Msg("failed to remove stored file")
	}
}
