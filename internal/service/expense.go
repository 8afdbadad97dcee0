package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

const defaultExpenseType = "General"

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	session, actor, err := s.drawerSession(ctx)
	if err != nil {
		return domain.Expense{}, err
	}
	if req.AmountCents <= 0 {
		return domain.Expense{}, domain.ErrInvalidAmount
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Expense{}, store.ErrInvalidTransaction
	}

	saved, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		RegisterID:  session.ID,
		Description: description,
		AmountCents: req.AmountCents,
		Type:        defaultString(req.Type, defaultExpenseType),
		Details:     req.Details,
		CreatedBy:   actor.Name,
		Date:        s.now(),
	})
	if err != nil {
		return domain.Expense{}, fmt.Errorf("%w: expense: %v", domain.ErrPersistenceFailure, err)
	}

	s.changed(ctx, session.ID)
	s.publish(ctx, events.TypeExpenseCreated, session.ID, saved)
	s.logAudit(ctx, "expense_create", "expense", saved.ID, fmt.Sprintf("amount=%d,type=%s", saved.AmountCents, saved.Type))
	return *saved, nil
}

// DeleteExpense reverses an expense of the open session. Expenses of a closed
// session are frozen into its report and cannot be touched.
func (s *Service) DeleteExpense(ctx context.Context, id string) (domain.Expense, error) {
	session, _, err := s.drawerSession(ctx)
	if err != nil {
		return domain.Expense{}, err
	}

	expense, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}
	if expense.RegisterID != session.ID {
		return domain.Expense{}, domain.ErrNotOpen
	}

	deleted, err := s.repo.DeleteExpense(ctx, expense.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Expense{}, err
		}
		return domain.Expense{}, fmt.Errorf("%w: expense delete: %v", domain.ErrPersistenceFailure, err)
	}

	s.changed(ctx, session.ID)
	s.publish(ctx, events.TypeExpenseDeleted, session.ID, deleted)
	s.logAudit(ctx, "expense_delete", "expense", deleted.ID, fmt.Sprintf("amount=%d,type=%s", deleted.AmountCents, deleted.Type))
	return *deleted, nil
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return nil, err
	}
	session, err := s.activeSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpensesByRegister(ctx, session.ID)
}
