package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
)

// ReferenceRepository reads the users and resources actions point at.
type ReferenceRepository struct {
	db *sql.DB
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// GetUser returns a user by id.
func (r *ReferenceRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var (
		user      models.User
		accountID sql.NullString
		email     sql.NullString
	)

	err := r.db.QueryRowContext(ctx, "SELECT id, account_id, email FROM users WHERE id = $1", userID).
		Scan(&user.ID, &accountID, &email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("LoadUser", "user", userID, persistence.ErrUserNotFound)
		}

		return nil, persistence.NewStoreError("LoadUser", "user", userID, err)
	}

	user.AccountID = accountID.String
	user.Email = email.String

	return &user, nil
}

// GetResource returns a resource by id.
func (r *ReferenceRepository) GetResource(ctx context.Context, resourceID string) (*models.Resource, error) {
	var resource models.Resource

	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM resources WHERE id = $1", resourceID).
		Scan(&resource.ID, &resource.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("LoadResource", "resource", resourceID, persistence.ErrResourceNotFound)
		}

		return nil, persistence.NewStoreError("LoadResource", "resource", resourceID, err)
	}

	return &resource, nil
}

// SaveUser upserts a user row. Used for seeding; accounts are managed elsewhere.
func (r *ReferenceRepository) SaveUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, account_id, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET account_id = EXCLUDED.account_id, email = EXCLUDED.email
	`, user.ID, user.AccountID, user.Email)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// SaveResource upserts a resource row. Used for seeding.
func (r *ReferenceRepository) SaveResource(ctx context.Context, resource *models.Resource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resources (id, name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, resource.ID, resource.Name)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}

	return nil
}
