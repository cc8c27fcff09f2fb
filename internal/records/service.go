// Package records holds the case and evidence repositories and the
// privileged operations over them. It is the substrate's first consumer:
// every operation runs under the session guard, verifies ownership before
// touching a resource, encrypts sensitive fields on the way to storage, and
// records exactly one terminal audit event per attempt.
package records

import (
	"context"
	"fmt"

	"casevault/internal/core"
)

// Service exposes the privileged case and evidence operations.
type Service struct {
	repo     *Repository
	guard    *core.Guard
	verifier *core.Verifier
	cipher   core.Cipher
	recorder *core.Recorder
	logger   core.Logger
	clock    core.Clock
	idgen    core.IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(repo *Repository, guard *core.Guard, verifier *core.Verifier, cipher core.Cipher, recorder *core.Recorder, logger core.Logger, clock core.Clock, idgen core.IDGenerator) *Service {
	return &Service{
		repo:     repo,
		guard:    guard,
		verifier: verifier,
		cipher:   cipher,
		recorder: recorder,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// CreateCase opens a new case for the session's user. Notes are encrypted
// before they reach storage.
func (s *Service) CreateCase(ctx context.Context, sessionID, title, notes string) (*Case, error) {
	var created *Case
	err := s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		sealed, err := s.cipher.EncryptString(notes)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseCreate, core.ResourceCase, "", &userID, err)
			return fmt.Errorf("encrypting notes: %w", err)
		}

		now := s.clock.Now().UTC()
		c := &Case{
			ID:        s.idgen.New(),
			UserID:    userID,
			Title:     title,
			Notes:     sealed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.insertCase(ctx, c); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseCreate, core.ResourceCase, c.ID, &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeData, core.ActionCaseCreate, core.ResourceCase, c.ID, &userID, map[string]any{"title": title})
		s.logger.Info("case created", "case_id", c.ID)

		created = &Case{ID: c.ID, UserID: userID, Title: title, Notes: notes, CreatedAt: now, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCase returns a case with its notes decrypted. Reads of sensitive data
// are privileged and audited.
func (s *Service) GetCase(ctx context.Context, sessionID, caseID string) (*Case, error) {
	var out *Case
	err := s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnership(ctx, core.ResourceCase, caseID, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseRead, core.ResourceCase, caseID, &userID, err)
			return err
		}

		c, err := s.repo.findCase(ctx, caseID)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseRead, core.ResourceCase, caseID, &userID, err)
			return err
		}
		if c == nil {
			err := fmt.Errorf("%w: case %s", core.ErrResourceNotFound, caseID)
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseRead, core.ResourceCase, caseID, &userID, err)
			return err
		}

		notes, err := s.cipher.DecryptString(c.Notes)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseRead, core.ResourceCase, caseID, &userID, err)
			return fmt.Errorf("decrypting notes: %w", err)
		}
		c.Notes = notes

		s.recorder.Success(ctx, core.EventTypeData, core.ActionCaseRead, core.ResourceCase, caseID, &userID, nil)
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateCaseNotes replaces a case's notes.
func (s *Service) UpdateCaseNotes(ctx context.Context, sessionID, caseID, notes string) error {
	return s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnership(ctx, core.ResourceCase, caseID, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseUpdate, core.ResourceCase, caseID, &userID, err)
			return err
		}

		sealed, err := s.cipher.EncryptString(notes)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseUpdate, core.ResourceCase, caseID, &userID, err)
			return fmt.Errorf("encrypting notes: %w", err)
		}

		if err := s.repo.updateCaseNotes(ctx, caseID, sealed, s.clock.Now().UTC()); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseUpdate, core.ResourceCase, caseID, &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeData, core.ActionCaseUpdate, core.ResourceCase, caseID, &userID, nil)
		return nil
	})
}

// DeleteCase removes a case and, through the schema's cascade, its evidence.
func (s *Service) DeleteCase(ctx context.Context, sessionID, caseID string) error {
	return s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnership(ctx, core.ResourceCase, caseID, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseDelete, core.ResourceCase, caseID, &userID, err)
			return err
		}

		if err := s.repo.deleteCase(ctx, caseID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionCaseDelete, core.ResourceCase, caseID, &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeData, core.ActionCaseDelete, core.ResourceCase, caseID, &userID, nil)
		s.logger.Info("case deleted", "case_id", caseID)
		return nil
	})
}

// AddEvidence attaches an evidence item to a case the user owns. Content is
// encrypted before storage.
func (s *Service) AddEvidence(ctx context.Context, sessionID, caseID, description, content string) (*Evidence, error) {
	var created *Evidence
	err := s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnership(ctx, core.ResourceCase, caseID, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceAdd, core.ResourceCase, caseID, &userID, err)
			return err
		}

		sealed, err := s.cipher.EncryptString(content)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceAdd, core.ResourceCase, caseID, &userID, err)
			return fmt.Errorf("encrypting content: %w", err)
		}

		e := &Evidence{
			ID:          s.idgen.New(),
			CaseID:      caseID,
			UserID:      userID,
			Description: description,
			Content:     sealed,
			CreatedAt:   s.clock.Now().UTC(),
		}
		if err := s.repo.insertEvidence(ctx, e); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceAdd, core.ResourceEvidence, e.ID, &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeData, core.ActionEvidenceAdd, core.ResourceEvidence, e.ID, &userID, map[string]any{"case_id": caseID})

		created = &Evidence{ID: e.ID, CaseID: caseID, UserID: userID, Description: description, Content: content, CreatedAt: e.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetEvidence returns an evidence item with its content decrypted.
func (s *Service) GetEvidence(ctx context.Context, sessionID, evidenceID string) (*Evidence, error) {
	var out *Evidence
	err := s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnership(ctx, core.ResourceEvidence, evidenceID, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceRead, core.ResourceEvidence, evidenceID, &userID, err)
			return err
		}

		e, err := s.repo.findEvidence(ctx, evidenceID)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceRead, core.ResourceEvidence, evidenceID, &userID, err)
			return err
		}
		if e == nil {
			err := fmt.Errorf("%w: evidence %s", core.ErrResourceNotFound, evidenceID)
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceRead, core.ResourceEvidence, evidenceID, &userID, err)
			return err
		}

		content, err := s.cipher.DecryptString(e.Content)
		if err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceRead, core.ResourceEvidence, evidenceID, &userID, err)
			return fmt.Errorf("decrypting content: %w", err)
		}
		e.Content = content

		s.recorder.Success(ctx, core.EventTypeData, core.ActionEvidenceRead, core.ResourceEvidence, evidenceID, &userID, nil)
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TagEvidence adds a tag to a batch of evidence items. Ownership is checked
// for every item before any write; the first failure aborts the whole batch.
func (s *Service) TagEvidence(ctx context.Context, sessionID string, evidenceIDs []string, tag string) error {
	return s.guard.Run(ctx, sessionID, func(ctx context.Context, userID int64) error {
		if err := s.verifier.VerifyOwnershipAll(ctx, core.ResourceEvidence, evidenceIDs, userID); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceTag, core.ResourceEvidence, "", &userID, err)
			return err
		}

		if err := s.repo.tagEvidenceAll(ctx, evidenceIDs, tag); err != nil {
			s.recorder.Failure(ctx, core.EventTypeData, core.ActionEvidenceTag, core.ResourceEvidence, "", &userID, err)
			return err
		}

		s.recorder.Success(ctx, core.EventTypeData, core.ActionEvidenceTag, core.ResourceEvidence, "", &userID, map[string]any{
			"tag":   tag,
			"count": len(evidenceIDs),
		})
		return nil
	})
}
