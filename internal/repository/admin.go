package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/model"
)

const adminColumns = `id, email, role, first_name, last_name, phone, is_active, email_verified, created_at, last_login`

// AdminRepository is the account directory consulted during sign-in.
type AdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.Admin, error)
	FindByID(ctx context.Context, id int64) (*model.Admin, error)
	TouchLastLogin(ctx context.Context, id int64, now time.Time) error
	Create(ctx context.Context, params model.CreateAdminParams) (*model.Admin, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AdminRepository
}

type adminRepo struct {
	db database.DBTX
}

func NewAdminRepository(db *sqlx.DB) AdminRepository {
	return &adminRepo{db: db}
}

func (r *adminRepo) WithTx(tx *sqlx.Tx) AdminRepository {
	return &adminRepo{db: tx}
}

// FindByEmail matches the stored address exactly; no case folding.
func (r *adminRepo) FindByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return findOne[model.Admin](ctx, r.db, `
		SELECT `+adminColumns+` FROM admins WHERE email = ?
	`, email)
}

func (r *adminRepo) FindByID(ctx context.Context, id int64) (*model.Admin, error) {
	return findOne[model.Admin](ctx, r.db, `
		SELECT `+adminColumns+` FROM admins WHERE id = ?
	`, id)
}

func (r *adminRepo) TouchLastLogin(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE admins SET last_login = ? WHERE id = ?
	`), now.UTC(), id)
	return err
}

func (r *adminRepo) Create(ctx context.Context, params model.CreateAdminParams) (*model.Admin, error) {
	role := params.Role
	if role == "" {
		role = model.AdminRoleAdmin
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := r.db.Rebind(`
		INSERT INTO admins (email, role, first_name, last_name, phone, is_active, email_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	args := []interface{}{
		params.Email, role, params.FirstName, params.LastName, params.Phone,
		params.IsActive, params.EmailVerified, createdAt.UTC(),
	}

	var id int64
	if database.DialectOf(r.db) == database.DialectPostgres {
		if err := r.db.GetContext(ctx, &id, query+" RETURNING id", args...); err != nil {
			return nil, err
		}
	} else {
		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		if id, err = result.LastInsertId(); err != nil {
			return nil, err
		}
	}

	admin, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if admin == nil {
		return nil, fmt.Errorf("admin %d not found after insert", id)
	}
	return admin, nil
}
