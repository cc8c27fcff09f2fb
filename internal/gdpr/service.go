// Package gdpr implements data-subject export and erasure over the
// substrate. Erasure deliberately preserves two tables: audit_events and
// consent_records are compliance evidence and survive a "delete all user
// data" request.
package gdpr

import (
	"context"
	"fmt"
	"time"

	"casevault/internal/core"
	"casevault/internal/database"
	"casevault/internal/records"
)

// Export is the complete data bundle for one user, sensitive fields
// decrypted for delivery to the data subject.
type Export struct {
	UserID      int64
	GeneratedAt time.Time
	Cases       []*records.Case
	Evidence    []*records.Evidence
	AuditTrail  []*core.AuditEvent
}

// Service performs GDPR export and erasure.
type Service struct {
	store    *database.Store
	repo     *records.Repository
	guard    *core.Guard
	cipher   core.Cipher
	recorder *core.Recorder
	logger   core.Logger
	clock    core.Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(store *database.Store, repo *records.Repository, guard *core.Guard, cipher core.Cipher, recorder *core.Recorder, logger core.Logger, clock core.Clock) *Service {
	return &Service{
		store:    store,
		repo:     repo,
		guard:    guard,
		cipher:   cipher,
		recorder: recorder,
		logger:   logger,
		clock:    clock,
	}
}

// ExportUserData collects everything stored about the session's user,
// decrypting sensitive fields and including the audit trail.
func (s *Service) ExportUserData(ctx context.Context, sessionID string) (*Export, error) {
	var export *Export
	err := s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		out, err := s.buildExport(ctx, userID)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeGDPR, core.ActionGDPRExport, core.ResourceUser, fmt.Sprint(userID), &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeGDPR, core.ActionGDPRExport, core.ResourceUser, fmt.Sprint(userID), &userID, map[string]any{
			"cases":    len(out.Cases),
			"evidence": len(out.Evidence),
		})
		export = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

func (s *Service) buildExport(ctx context.Context, userID int64) (*Export, error) {
	cases, err := s.repo.ListCasesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range cases {
		notes, err := s.cipher.DecryptString(c.Notes)
		if err != nil {
			return nil, fmt.Errorf("decrypting case %s: %w", c.ID, err)
		}
		c.Notes = notes
	}

	evidence, err := s.repo.ListEvidenceByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range evidence {
		content, err := s.cipher.DecryptString(e.Content)
		if err != nil {
			return nil, fmt.Errorf("decrypting evidence %s: %w", e.ID, err)
		}
		e.Content = content
	}

	trail, err := s.recorder.List(ctx, core.AuditFilter{UserID: &userID})
	if err != nil {
		return nil, err
	}

	return &Export{
		UserID:      userID,
		GeneratedAt: s.clock.Now().UTC(),
		Cases:       cases,
		Evidence:    evidence,
		AuditTrail:  trail,
	}, nil
}

// EraseUserData deletes the session's user's cases, evidence and sessions in
// one transaction. The audit ledger and consent records stay intact; the
// erasure itself becomes the user's final audit entry.
func (s *Service) EraseUserData(ctx context.Context, sessionID string) error {
	return s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		counts, err := s.erase(ctx, userID)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeGDPR, core.ActionGDPRErase, core.ResourceUser, fmt.Sprint(userID), &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeGDPR, core.ActionGDPRErase, core.ResourceUser, fmt.Sprint(userID), &userID, counts)
		s.logger.Info("user data erased", "user_id", userID)
		return nil
	})
}

func (s *Service) erase(ctx context.Context, userID int64) (map[string]any, error) {
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: starting transaction: %v", core.ErrStorage, err)
	}
	defer tx.Rollback()

	counts := map[string]any{}
	// audit_events and consent_records are intentionally absent here.
	for _, del := range []struct {
		name  string
		query string
	}{
		{"evidence", "DELETE FROM evidence WHERE user_id = ?"},
		{"cases", "DELETE FROM cases WHERE user_id = ?"},
		{"sessions", "DELETE FROM sessions WHERE user_id = ?"},
	} {
		res, err := tx.ExecContext(ctx, del.query, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: deleting %s: %v", core.ErrStorage, del.name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts[del.name] = n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing erasure: %v", core.ErrStorage, err)
	}
	return counts, nil
}
