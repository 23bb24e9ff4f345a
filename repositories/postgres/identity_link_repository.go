package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/identity-core/models"
	"github.com/upb/identity-core/repositories"
	"go.uber.org/zap"
)

// IdentityLinkRepository implements the repositories.IdentityLinkRepository interface
type IdentityLinkRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewIdentityLinkRepository creates a new identity link repository
func NewIdentityLinkRepository(db *DB, logger *zap.Logger) repositories.IdentityLinkRepository {
	return &IdentityLinkRepository{
		db:     db,
		logger: logger,
	}
}

const linkColumns = `id, provider, sub, user_id, created_at, updated_at`

// Create creates a new identity link
func (r *IdentityLinkRepository) Create(ctx context.Context, newLink models.NewIdentityLink) (*models.IdentityLink, error) {
	link := newLink.Build()

	query := `
		INSERT INTO identity_links (id, provider, sub, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		link.ID,
		link.Provider,
		link.Sub,
		link.UserID,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("identity %s already linked: %w", link.Key(), repositories.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create identity link: %w", err)
	}

	r.logger.Debug("identity link created",
		zap.String("provider", link.Provider),
		zap.String("user_id", link.UserID.String()))
	return link, nil
}

// FindBySub retrieves an identity link by provider and subject
func (r *IdentityLinkRepository) FindBySub(ctx context.Context, provider, sub string) (*models.IdentityLink, error) {
	query := `SELECT ` + linkColumns + ` FROM identity_links WHERE provider = $1 AND sub = $2`

	executor := GetExecutor(ctx, r.db)
	link, err := scanLink(executor.QueryRowContext(ctx, query, provider, sub))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity link %s: %w", models.LinkKey(provider, sub), repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get identity link: %w", err)
	}

	return link, nil
}

// ListByUserID retrieves all identity links for a user
func (r *IdentityLinkRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.IdentityLink, error) {
	query := `SELECT ` + linkColumns + ` FROM identity_links WHERE user_id = $1 ORDER BY created_at`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity links: %w", err)
	}
	defer rows.Close()

	links := make([]*models.IdentityLink, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating identity link rows: %w", err)
	}

	return links, nil
}

func scanLink(row rowScanner) (*models.IdentityLink, error) {
	link := &models.IdentityLink{}
	if err := row.Scan(
		&link.ID,
		&link.Provider,
		&link.Sub,
		&link.UserID,
		&link.CreatedAt,
		&link.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return link, nil
}
