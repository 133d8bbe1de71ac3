// Package documents keeps uploaded patient files: scanned documents and lab
// scans. The bytes live in a blobstore; rows hold the metadata and the
// storage path.
package documents

import (
	"time"

	"github.com/google/uuid"
)

const (
	CategoryDocument = "document"
	CategoryLabScan  = "lab_scan"
)

var validCategories = map[string]bool{
	CategoryDocument: true,
	CategoryLabScan:  true,
}

type Document struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	VisitID     *uuid.UUID `json:"visit_id,omitempty"`
	Category    string     `json:"category"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	SHA256      string     `json:"sha256"`
	StoragePath string     `json:"-"`
	Description *string    `json:"description,omitempty"`
	UploadedBy  uuid.UUID  `json:"uploaded_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UploadInput is the form part of an upload; the file itself is passed
// separately as a reader.
type UploadInput struct {
	Category    string
	VisitID     *uuid.UUID
	Description *string
	FileName    string
}
