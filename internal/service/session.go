package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"venuepos/backend/internal/aggregate"
	"venuepos/backend/internal/domain"
	"venuepos/backend/internal/events"
	"venuepos/backend/internal/store"
	"venuepos/backend/internal/xid"
)

// Authorize reports whether actor may act on the session's drawer. Admins
// always may; anyone else only if they opened it. With requireOwnership a
// refusal is returned as ErrAccessDenied.
func Authorize(actor domain.Actor, session domain.RegisterSession, requireOwnership bool) (bool, error) {
	if !actor.Anonymous() {
		if actor.Role == domain.RoleAdmin {
			return true, nil
		}
		if strings.TrimSpace(actor.Name) == strings.TrimSpace(session.OpenedBy) {
			return true, nil
		}
	}
	if requireOwnership {
		return false, domain.ErrAccessDenied
	}
	return false, nil
}

func (s *Service) OpenSession(ctx context.Context, req domain.OpenSessionRequest) (domain.SessionResponse, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	if req.OpeningAmountCents < 0 {
		return domain.SessionResponse{}, domain.ErrInvalidAmount
	}

	session := domain.RegisterSession{
		ID:                 xid.New("reg"),
		VenueID:            s.venueID,
		Status:             domain.SessionStatusOpen,
		OpenedBy:           actor.Name,
		OpenedByID:         actor.ID,
		OpenedAt:           s.now(),
		OpeningAmountCents: req.OpeningAmountCents,
		OpeningNote:        strings.TrimSpace(req.Note),
	}
	saved, err := s.repo.CreateSession(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.SessionResponse{}, domain.ErrAlreadyOpen
		}
		return domain.SessionResponse{}, fmt.Errorf("%w: open session: %v", domain.ErrPersistenceFailure, err)
	}

	s.metrics.SessionTransition(domain.SessionStatusOpen)
	s.changed(ctx, saved.ID)
	s.logAudit(ctx, "register_open", "register_session", saved.ID, fmt.Sprintf("opening=%d", saved.OpeningAmountCents))

	return domain.SessionResponse{Session: *saved}, nil
}

// CloseSession freezes the live stats onto the session and resets them. The
// expected drawer is opening float plus cash sales minus expenses.
func (s *Service) CloseSession(ctx context.Context, req domain.CloseSessionRequest) (domain.SessionReport, error) {
	session, actor, err := s.drawerSession(ctx)
	if err != nil {
		return domain.SessionReport{}, err
	}
	if req.DeclaredCashCents != nil && *req.DeclaredCashCents < 0 {
		return domain.SessionReport{}, domain.ErrInvalidAmount
	}

	stats, err := s.watcher.RecomputeSession(ctx, session.ID)
	if err != nil {
		return domain.SessionReport{}, fmt.Errorf("%w: session stats: %v", domain.ErrPersistenceFailure, err)
	}

	closing := domain.SessionClosing{
		ClosedAt:            s.now(),
		ClosedBy:            actor.Name,
		FinalCashCalculated: session.OpeningAmountCents + stats.CashSalesCents - stats.TotalExpensesCents,
		DeclaredCashCents:   req.DeclaredCashCents,
		ClosingNote:         strings.TrimSpace(req.Note),
		FinalSalesStats:     stats,
	}
	if req.DeclaredCashCents != nil {
		discrepancy := *req.DeclaredCashCents - closing.FinalCashCalculated
		closing.DiscrepancyCents = &discrepancy
	}

	closed, err := s.repo.CloseSession(ctx, session.ID, closing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SessionReport{}, domain.ErrNotOpen
		}
		return domain.SessionReport{}, fmt.Errorf("%w: close session: %v", domain.ErrPersistenceFailure, err)
	}

	s.watcher.Reset(ctx, closed.ID)
	s.notify(ctx, closed.ID)

	report := domain.SessionReport{Session: *closed, Stats: stats}
	if lines, err := s.commissionLines(ctx, closed.ID, stats); err == nil {
		report.Commissions = lines
	}

	s.metrics.SessionTransition(domain.SessionStatusClosed)
	s.publish(ctx, events.TypeRegisterClosed, closed.ID, report)
	s.logAudit(ctx, "register_close", "register_session", closed.ID, fmt.Sprintf("final_cash=%d", closing.FinalCashCalculated))

	return report, nil
}

func (s *Service) ActiveSession(ctx context.Context) (domain.SessionResponse, error) {
	session, err := s.activeSession(ctx)
	if err != nil {
		return domain.SessionResponse{}, err
	}
	return domain.SessionResponse{Session: *session}, nil
}

// LiveStats serves the watcher's view when it tracks the active session,
// then the shared cache, and only then recomputes.
func (s *Service) LiveStats(ctx context.Context) (domain.SessionStats, error) {
	session, err := s.activeSession(ctx)
	if err != nil {
		return domain.SessionStats{}, err
	}
	if current := s.watcher.Current(); current.RegisterID == session.ID {
		return current, nil
	}
	if cached, ok, err := s.stats.Get(ctx, session.ID); err == nil && ok {
		return *cached, nil
	}
	return s.watcher.RecomputeSession(ctx, session.ID)
}

// SessionReport is the z-report: a closed session carries its frozen stats, an
// open one is computed on the spot.
func (s *Service) SessionReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.SessionReport{}, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}

	var stats domain.SessionStats
	if session.Status == domain.SessionStatusClosed && session.FinalSalesStats != nil {
		stats = *session.FinalSalesStats
	} else {
		sales, err := s.repo.ListSalesByRegister(ctx, session.ID)
		if err != nil {
			return domain.SessionReport{}, err
		}
		expenses, err := s.repo.ListExpensesByRegister(ctx, session.ID)
		if err != nil {
			return domain.SessionReport{}, err
		}
		stats = aggregate.Recompute(session.ID, sales, expenses)
	}

	lines, err := s.commissionLines(ctx, session.ID, stats)
	if err != nil {
		return domain.SessionReport{}, err
	}
	return domain.SessionReport{Session: *session, Stats: stats, Commissions: lines}, nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.RegisterSession, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 30
	}
	return s.repo.ListSessions(ctx, s.venueID, limit)
}

func (s *Service) activeSession(ctx context.Context) (*domain.RegisterSession, error) {
	session, err := s.repo.GetActiveSession(ctx, s.venueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrNotOpen
		}
		return nil, err
	}
	return session, nil
}

// drawerSession loads the active session and checks the caller may move money
// through it.
func (s *Service) drawerSession(ctx context.Context) (*domain.RegisterSession, domain.Actor, error) {
	actor, _ := ActorFromContext(ctx)
	session, err := s.activeSession(ctx)
	if err != nil {
		return nil, actor, err
	}
	if _, err := Authorize(actor, *session, true); err != nil {
		return nil, actor, err
	}
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return nil, actor, err
	}
	return session, actor, nil
}
