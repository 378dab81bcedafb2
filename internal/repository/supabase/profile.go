// Package supabase implements the profile store over the hosted PostgREST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/taq-server/internal/model"
)

const (
	table           = "users"
	uniqueViolation = "23505"
)

var _ model.ProfileStore = (*ProfileRepository)(nil)

// Config holds the hosted store connection parameters.
type Config struct {
	URL    string
	APIKey string
}

// ProfileRepository reads and writes the users table through PostgREST.
type ProfileRepository struct {
	prefix string
	apiKey string
	client *http.Client
}

func NewProfileRepository(cfg Config, client *http.Client) (*ProfileRepository, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &ProfileRepository{
		prefix: strings.TrimRight(cfg.URL, "/") + "/rest/v1/" + table,
		apiKey: cfg.APIKey,
		client: client,
	}, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// row mirrors the table layout; nullable columns come back as JSON null.
type row struct {
	ID               uuid.UUID `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	IdentityID       string    `json:"identity_id"`
	FullName         string    `json:"full_name"`
	Email            *string   `json:"email"`
	WalletAddress    *string   `json:"wallet_address"`
	OrganizationName *string   `json:"organization_name"`
}

func (r row) profile() model.Profile {
	return model.Profile{
		ID:               r.ID,
		CreatedAt:        r.CreatedAt,
		IdentityID:       r.IdentityID,
		FullName:         r.FullName,
		Email:            deref(r.Email),
		WalletAddress:    deref(r.WalletAddress),
		OrganizationName: deref(r.OrganizationName),
	}
}

type insertRow struct {
	IdentityID       string  `json:"identity_id"`
	FullName         string  `json:"full_name"`
	Email            string  `json:"email"`
	WalletAddress    *string `json:"wallet_address"`
	OrganizationName *string `json:"organization_name"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *ProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	p, err := r.selectOne(ctx, "id", id.String())
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile by id: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) FindByIdentityID(ctx context.Context, identityID string) (model.Profile, error) {
	p, err := r.selectOne(ctx, "identity_id", identityID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile by identity id: %w", err)
	}
	return p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, params model.CreateProfileParams) (model.Profile, error) {
	body, err := json.Marshal(insertRow{
		IdentityID:       params.IdentityID,
		FullName:         params.FullName,
		Email:            params.Email,
		WalletAddress:    optional(params.WalletAddress),
		OrganizationName: optional(params.OrganizationName),
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.prefix, bytes.NewReader(body))
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to build request: %w", err)
	}
	r.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	var rows []row
	if err := r.do(req, &rows); err != nil {
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	if len(rows) == 0 {
		return model.Profile{}, fmt.Errorf("failed to create profile: empty representation")
	}

	return rows[0].profile(), nil
}

func (r *ProfileRepository) List(ctx context.Context, limit int) ([]model.Profile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.prefix+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	r.setHeaders(req)

	var rows []row
	if err := r.do(req, &rows); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	profiles := make([]model.Profile, 0, len(rows))
	for _, rw := range rows {
		profiles = append(profiles, rw.profile())
	}
	return profiles, nil
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.prefix+"?select=id&limit=1", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	r.setHeaders(req)

	var rows []json.RawMessage
	if err := r.do(req, &rows); err != nil {
		return fmt.Errorf("supabase health check failed: %w", err)
	}
	return nil
}

func (r *ProfileRepository) selectOne(ctx context.Context, column, value string) (model.Profile, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(column, "eq."+value)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.prefix+"?"+q.Encode(), nil)
	if err != nil {
		return model.Profile{}, err
	}
	r.setHeaders(req)

	var rows []row
	if err := r.do(req, &rows); err != nil {
		return model.Profile{}, err
	}
	if len(rows) == 0 {
		return model.Profile{}, model.ErrNotFound
	}
	return rows[0].profile(), nil
}

func (r *ProfileRepository) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
}

func (r *ProfileRepository) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code == uniqueViolation {
			return model.ErrProfileExists
		}
		if resp.StatusCode == http.StatusConflict {
			return model.ErrProfileExists
		}
		return fmt.Errorf("supabase error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}
