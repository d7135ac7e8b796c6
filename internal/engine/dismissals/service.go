// Package dismissals manages finding suppressions: single dismissals, bulk
// dismissal sets, and restores.
package dismissals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"checkvibe/internal/platform/models"
)

var (
	ErrInvalidReason = errors.New("invalid dismissal reason")
	ErrInvalidScope  = errors.New("invalid dismissal scope")
	ErrMissingField  = errors.New("fingerprint and reason are required")
	ErrNotFound      = errors.New("dismissal not found")
	ErrNotOwner      = errors.New("dismissal belongs to another user")
)

// Store is the durable side of the dismissal engine.
type Store interface {
	Create(ctx context.Context, d *models.Dismissal) error
	GetByID(ctx context.Context, id string) (*models.Dismissal, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// DismissRequest describes one finding suppression. ScanID is required only
// for scan-scoped dismissals.
type DismissRequest struct {
	UserID      string
	ProjectID   string
	ScanID      string
	Fingerprint string
	Reason      string
	Note        string
	Scope       string
}

func (r *DismissRequest) validate() error {
	if r.Fingerprint == "" || r.Reason == "" {
		return ErrMissingField
	}
	if !models.ValidDismissalReason(r.Reason) {
		return ErrInvalidReason
	}
	if r.Scope == "" {
		r.Scope = models.DismissalScopeProject
	}
	if !models.ValidDismissalScope(r.Scope) {
		return ErrInvalidScope
	}
	if r.Scope == models.DismissalScopeScan && r.ScanID == "" {
		return ErrInvalidScope
	}
	return nil
}

func (s *Service) Dismiss(ctx context.Context, req *DismissRequest) (*models.Dismissal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	d := &models.Dismissal{
		ID:          "dis_" + uuid.New().String(),
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		ScanID:      req.ScanID,
		Fingerprint: req.Fingerprint,
		Reason:      req.Reason,
		Note:        req.Note,
		Scope:       req.Scope,
		CreatedAt:   time.Now().Unix(),
	}
	if d.Scope == models.DismissalScopeProject {
		d.ScanID = ""
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Restore removes a dismissal so the finding counts against the score again.
// Only the dismissing user may restore.
func (s *Service) Restore(ctx context.Context, id, userID string) error {
	d, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return ErrNotFound
	}
	if d.UserID != userID {
		return ErrNotOwner
	}
	return s.store.Delete(ctx, id)
}
