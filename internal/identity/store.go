package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// StoreAdmin implements Admin against the users table.
type StoreAdmin struct {
	db *sqlx.DB
}

// NewStoreAdmin constructs the store-backed identity admin.
func NewStoreAdmin(db *sqlx.DB) *StoreAdmin {
	return &StoreAdmin{db: db}
}

// CreateIdentity inserts a new identity row and returns its id.
func (a *StoreAdmin) CreateIdentity(ctx context.Context, ident NewIdentity) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(ident.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	meta, err := json.Marshal(ident.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal identity metadata: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	const query = `INSERT INTO users (id, email, password_hash, metadata, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $5)`
	if _, err := a.db.ExecContext(ctx, query, id, strings.ToLower(ident.Email), string(hash), meta, now); err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

// DeleteIdentity removes the identity row. Deleting an already-deleted
// identity is not an error, so the compensating action is idempotent.
func (a *StoreAdmin) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
