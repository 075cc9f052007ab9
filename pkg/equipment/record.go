package equipment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/tagsync/pkg/errors"
)

// Record statuses.
const (
	StatusNew      = "New"
	StatusExisting = "Existing"
)

// Field names compared during a field-level merge.
const (
	FieldDescription  = "description"
	FieldArea         = "area"
	FieldManufacturer = "manufacturer"
	FieldModel        = "model"
	FieldLayer        = "layer"
)

// MergeFields lists the record fields that reconciliation compares, in order.
var MergeFields = []string{FieldDescription, FieldArea, FieldManufacturer, FieldModel, FieldLayer}

// Record is an equipment item held by the system of record. Records are
// never hard-deleted; Deactivate retires them.
type Record struct {
	ID                    string    `json:"id" yaml:"id"`
	ProjectID             string    `json:"project_id" yaml:"project_id"`
	TagNumber             string    `json:"tag_number" yaml:"tag_number"`
	EquipmentType         string    `json:"equipment_type" yaml:"equipment_type"`
	Description           string    `json:"description,omitempty" yaml:"description,omitempty"`
	Area                  string    `json:"area,omitempty" yaml:"area,omitempty"`
	Manufacturer          string    `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
	Model                 string    `json:"model,omitempty" yaml:"model,omitempty"`
	Layer                 string    `json:"layer,omitempty" yaml:"layer,omitempty"`
	Status                string    `json:"status" yaml:"status"`
	SourceDrawingID       *string   `json:"source_drawing_id,omitempty" yaml:"source_drawing_id,omitempty"`
	SourceBlockIdentifier *string   `json:"source_block,omitempty" yaml:"source_block,omitempty"`
	SourceHandle          *string   `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	UpstreamID            *string   `json:"upstream_id,omitempty" yaml:"upstream_id,omitempty"`
	DownstreamID          *string   `json:"downstream_id,omitempty" yaml:"downstream_id,omitempty"`
	CreatedAt             time.Time `json:"created_at" yaml:"created_at"`
	ModifiedAt            time.Time `json:"modified_at" yaml:"modified_at"`
	IsActive              bool      `json:"is_active" yaml:"is_active"`
}

// NewID returns a time-sortable UUIDv7 record identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Field returns the value of a merge field.
func (r *Record) Field(name string) string {
	switch name {
	case FieldDescription:
		return r.Description
	case FieldArea:
		return r.Area
	case FieldManufacturer:
		return r.Manufacturer
	case FieldModel:
		return r.Model
	case FieldLayer:
		return r.Layer
	}
	return ""
}

// SetField sets the value of a merge field.
func (r *Record) SetField(name, value string) {
	switch name {
	case FieldDescription:
		r.Description = value
	case FieldArea:
		r.Area = value
	case FieldManufacturer:
		r.Manufacturer = value
	case FieldModel:
		r.Model = value
	case FieldLayer:
		r.Layer = value
	}
}

// Deactivate retires the record.
func (r *Record) Deactivate(at time.Time) {
	r.IsActive = false
	r.ModifiedAt = at
}

// ValidateLinks rejects a record that points at itself upstream or
// downstream. Longer cycles are allowed.
func (r *Record) ValidateLinks() error {
	if r.UpstreamID != nil && *r.UpstreamID == r.ID {
		return errors.NewValidationError("upstream_id", *r.UpstreamID, fmt.Sprintf("record %s cannot be its own upstream", r.TagNumber))
	}
	if r.DownstreamID != nil && *r.DownstreamID == r.ID {
		return errors.NewValidationError("downstream_id", *r.DownstreamID, fmt.Sprintf("record %s cannot be its own downstream", r.TagNumber))
	}
	return nil
}

// Ptr returns a pointer to s, or nil when s is empty.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
