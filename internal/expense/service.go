package expense

import (
	"context"
	"fmt"
	"time"

	"github.com/gerai-ops/gerai/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, e Expense) (int64, error)
	Get(ctx context.Context, id int64) (Expense, error)
	UpdateStatus(ctx context.Context, id int64, status Status, approvedBy *int64) error
	List(ctx context.Context, filter ListFilter) ([]Expense, error)
	ListWindow(ctx context.Context, from, to time.Time) ([]Expense, error)
	VoidByRef(ctx context.Context, kind RefKind, refID int64) (int64, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages expense records and their approval workflow.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the expense service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes a new expense.
type CreateInput struct {
	Category     string
	Type         Type
	Amount       int64
	Vendor       string
	Meta         map[string]any
	RefKind      RefKind
	RefID        *int64
	CreatedBy    int64
	AutoApproved bool
}

// Create persists a new expense. Engine-generated records pass
// AutoApproved; operator entries start pending.
func (s *Service) Create(ctx context.Context, input CreateInput) (Expense, error) {
	if input.Amount <= 0 {
		return Expense{}, ErrInvalidAmount
	}
	e := Expense{
		Category:  input.Category,
		Type:      input.Type,
		Amount:    input.Amount,
		Vendor:    input.Vendor,
		Status:    StatusPending,
		Meta:      input.Meta,
		RefKind:   input.RefKind,
		RefID:     input.RefID,
		CreatedBy: input.CreatedBy,
	}
	if e.Type == "" {
		e.Type = TypeOrdinary
	}
	if input.AutoApproved {
		e.Status = StatusApproved
		e.ApprovedBy = &input.CreatedBy
	}
	id, err := s.repo.Create(ctx, e)
	if err != nil {
		return Expense{}, err
	}
	e.ID = id
	s.recordAudit(ctx, input.CreatedBy, "EXPENSE_CREATE", id, map[string]any{"category": e.Category, "amount": e.Amount})
	return e, nil
}

// Approve transitions a pending expense to approved.
func (s *Service) Approve(ctx context.Context, id int64, actorID int64) error {
	return s.transition(ctx, id, StatusApproved, actorID)
}

// Reject transitions a pending expense to rejected.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64) error {
	return s.transition(ctx, id, StatusRejected, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, status Status, actorID int64) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != StatusPending {
		return ErrInvalidState
	}
	var approver *int64
	if status == StatusApproved {
		approver = &actorID
	}
	if err := s.repo.UpdateStatus(ctx, id, status, approver); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "EXPENSE_"+string(status), id, nil)
	return nil
}

// Get fetches one expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	return s.repo.List(ctx, filter)
}

// ListWindow returns expenses inside a time window for aggregation.
func (s *Service) ListWindow(ctx context.Context, from, to time.Time) ([]Expense, error) {
	return s.repo.ListWindow(ctx, from, to)
}

// VoidByRef voids every expense generated for an originating entity, used
// by compensating procedures.
func (s *Service) VoidByRef(ctx context.Context, kind RefKind, refID int64, actorID int64) (int64, error) {
	voided, err := s.repo.VoidByRef(ctx, kind, refID)
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, actorID, "EXPENSE_VOID_BY_REF", refID, map[string]any{"ref_kind": kind, "voided": voided})
	return voided, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "expense", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
