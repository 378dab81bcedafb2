package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/taq-server/internal/model"
)

const uniqueViolation = "23505"

const profileColumns = `id, created_at, identity_id, full_name, email, wallet_address, organization_name`

var _ model.ProfileStore = (*ProfileRepository)(nil)

type ProfileRepository struct {
	db *Connection
}

func NewProfileRepository(db *Connection) *ProfileRepository {
	return &ProfileRepository{
		db: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (model.Profile, error) {
	var (
		p      model.Profile
		wallet sql.NullString
		org    sql.NullString
	)
	err := row.Scan(&p.ID, &p.CreatedAt, &p.IdentityID, &p.FullName, &p.Email, &wallet, &org)
	if err != nil {
		return model.Profile{}, err
	}
	p.WalletAddress = wallet.String
	p.OrganizationName = org.String
	return p, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, model.ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("failed to get profile by id: %w", err)
	}

	return p, nil
}

func (r *ProfileRepository) FindByIdentityID(ctx context.Context, identityID string) (model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users WHERE identity_id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, identityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, model.ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("failed to get profile by identity id: %w", err)
	}

	return p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, params model.CreateProfileParams) (model.Profile, error) {
	query := `INSERT INTO users (identity_id, full_name, email, wallet_address, organization_name)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING ` + profileColumns

	p, err := scanProfile(r.db.QueryRowContext(ctx, query,
		params.IdentityID, params.FullName, params.Email,
		nullable(params.WalletAddress), nullable(params.OrganizationName),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Profile{}, model.ErrProfileExists
		}
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}

	return p, nil
}

func (r *ProfileRepository) List(ctx context.Context, limit int) ([]model.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM users ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]model.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}

	return profiles, nil
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
