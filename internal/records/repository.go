package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"casevault/internal/core"
	"casevault/internal/database"
)

// Case is a case file. Notes is sensitive and stored encrypted; the value
// here is always plaintext and never leaves process memory unencrypted.
type Case struct {
	ID        string
	UserID    int64
	Title     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Evidence is one item of evidence attached to a case. Content is sensitive
// and stored encrypted.
type Evidence struct {
	ID          string
	CaseID      string
	UserID      int64
	Description string
	Content     string
	Tags        []string
	CreatedAt   time.Time
}

// Repository is the SQL layer under the records service. It deals only in
// stored (ciphertext) column values; encryption and authorization live in
// the service.
type Repository struct {
	store *Store
}

// Store is a thin alias so callers wire the primary store through.
type Store = database.Store

// NewRepository creates a Repository over the primary store.
func NewRepository(store *Store) *Repository {
	return &Repository{store: store}
}

func (r *Repository) insertCase(ctx context.Context, c *Case) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO cases (id, user_id, title, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Title, c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: inserting case: %v", core.ErrStorage, err)
	}
	return nil
}

func (r *Repository) findCase(ctx context.Context, id string) (*Case, error) {
	var c Case
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT id, user_id, title, notes, created_at, updated_at
		FROM cases
		WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.Title, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: finding case: %v", core.ErrStorage, err)
	}
	return &c, nil
}

func (r *Repository) updateCaseNotes(ctx context.Context, id, notes string, updatedAt time.Time) error {
	_, err := r.store.DB().ExecContext(ctx, `
		UPDATE cases SET notes = ?, updated_at = ? WHERE id = ?
	`, notes, updatedAt, id)
	if err != nil {
		return fmt.Errorf("%w: updating case notes: %v", core.ErrStorage, err)
	}
	return nil
}

func (r *Repository) deleteCase(ctx context.Context, id string) error {
	_, err := r.store.DB().ExecContext(ctx, `DELETE FROM cases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting case: %v", core.ErrStorage, err)
	}
	return nil
}

func (r *Repository) insertEvidence(ctx context.Context, e *Evidence) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO evidence (id, case_id, user_id, description, content, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CaseID, e.UserID, e.Description, e.Content, joinTags(e.Tags), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: inserting evidence: %v", core.ErrStorage, err)
	}
	return nil
}

func (r *Repository) findEvidence(ctx context.Context, id string) (*Evidence, error) {
	var (
		e    Evidence
		tags string
	)
	err := r.store.DB().QueryRowContext(ctx, `
		SELECT id, case_id, user_id, description, content, tags, created_at
		FROM evidence
		WHERE id = ?
	`, id).Scan(&e.ID, &e.CaseID, &e.UserID, &e.Description, &e.Content, &tags, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: finding evidence: %v", core.ErrStorage, err)
	}
	e.Tags = splitTags(tags)
	return &e, nil
}

func (r *Repository) ListEvidenceByUser(ctx context.Context, userID int64) ([]*Evidence, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, case_id, user_id, description, content, tags, created_at
		FROM evidence
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing evidence: %v", core.ErrStorage, err)
	}
	defer rows.Close()

	var items []*Evidence
	for rows.Next() {
		var (
			e    Evidence
			tags string
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &e.UserID, &e.Description, &e.Content, &tags, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning evidence: %v", core.ErrStorage, err)
		}
		e.Tags = splitTags(tags)
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating evidence: %v", core.ErrStorage, err)
	}
	return items, nil
}

func (r *Repository) ListCasesByUser(ctx context.Context, userID int64) ([]*Case, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, user_id, title, notes, created_at, updated_at
		FROM cases
		WHERE user_id = ?
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing cases: %v", core.ErrStorage, err)
	}
	defer rows.Close()

	var items []*Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning case: %v", core.ErrStorage, err)
		}
		items = append(items, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating cases: %v", core.ErrStorage, err)
	}
	return items, nil
}

// tagEvidenceAll appends a tag to every item in one transaction, so an
// ownership-gated batch write is never partially applied.
func (r *Repository) tagEvidenceAll(ctx context.Context, ids []string, tag string) error {
	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: starting transaction: %v", core.ErrStorage, err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		var tags string
		if err := tx.QueryRowContext(ctx, `SELECT tags FROM evidence WHERE id = ?`, id).Scan(&tags); err != nil {
			return fmt.Errorf("%w: reading tags for %s: %v", core.ErrStorage, id, err)
		}
		next := appendTag(tags, tag)
		if _, err := tx.ExecContext(ctx, `UPDATE evidence SET tags = ? WHERE id = ?`, next, id); err != nil {
			return fmt.Errorf("%w: tagging %s: %v", core.ErrStorage, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", core.ErrStorage, err)
	}
	return nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	return strings.Split(tags, ",")
}

func appendTag(existing, tag string) string {
	tags := splitTags(existing)
	for _, t := range tags {
		if t == tag {
			return existing
		}
	}
	return joinTags(append(tags, tag))
}
