package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/taq-server/internal/model"
)

func newRepo(t *testing.T, h http.HandlerFunc) *ProfileRepository {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	r, err := NewProfileRepository(Config{URL: srv.URL + "/", APIKey: "service-key"}, srv.Client())
	require.NoError(t, err)
	return r
}

func TestNewProfileRepository_Validation(t *testing.T) {
	_, err := NewProfileRepository(Config{APIKey: "k"}, nil)
	require.Error(t, err)

	_, err = NewProfileRepository(Config{URL: "http://x"}, nil)
	require.Error(t, err)
}

func TestProfileRepository_FindByIdentityID(t *testing.T) {
	id := uuid.New()
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/rest/v1/users", req.URL.Path)
		assert.Equal(t, "eq.priv_2", req.URL.Query().Get("identity_id"))
		assert.Equal(t, "1", req.URL.Query().Get("limit"))
		assert.Equal(t, "service-key", req.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))

		_, _ = io.WriteString(w, `[{"id":"`+id.String()+`","created_at":"2024-05-01T10:00:00Z","identity_id":"priv_2","full_name":"Ann Lee","email":"ann@example.com","wallet_address":null,"organization_name":"Acme"}]`)
	})

	p, err := r.FindByIdentityID(context.Background(), "priv_2")
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "Ann Lee", p.FullName)
	assert.Empty(t, p.WalletAddress)
	assert.Equal(t, "Acme", p.OrganizationName)
}

func TestProfileRepository_FindByID_NotFound(t *testing.T) {
	id := uuid.New()
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "eq."+id.String(), req.URL.Query().Get("id"))
		_, _ = io.WriteString(w, `[]`)
	})

	_, err := r.FindByID(context.Background(), id)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestProfileRepository_ServerError(t *testing.T) {
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"code":"XX000","message":"boom"}`)
	})

	_, err := r.FindByIdentityID(context.Background(), "priv_1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "status 500")
}

func TestProfileRepository_Create(t *testing.T) {
	id := uuid.New()
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "return=representation", req.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "priv_1", body["identity_id"])
		assert.Equal(t, "Ann Lee", body["full_name"])
		assert.Nil(t, body["wallet_address"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"`+id.String()+`","created_at":"2024-05-01T10:00:00Z","identity_id":"priv_1","full_name":"Ann Lee","email":"","wallet_address":null,"organization_name":null}]`)
	})

	p, err := r.Create(context.Background(), model.CreateProfileParams{IdentityID: "priv_1", FullName: "Ann Lee"})
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
}

func TestProfileRepository_Create_Duplicate(t *testing.T) {
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
	})

	_, err := r.Create(context.Background(), model.CreateProfileParams{IdentityID: "priv_1", FullName: "Ann"})
	require.ErrorIs(t, err, model.ErrProfileExists)
}

func TestProfileRepository_List(t *testing.T) {
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "created_at.desc", req.URL.Query().Get("order"))
		assert.Equal(t, "25", req.URL.Query().Get("limit"))
		_, _ = io.WriteString(w, `[{"id":"`+uuid.NewString()+`","created_at":"2024-05-02T10:00:00Z","identity_id":"b","full_name":"B"},{"id":"`+uuid.NewString()+`","created_at":"2024-05-01T10:00:00Z","identity_id":"a","full_name":"A"}]`)
	})

	list, err := r.List(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].IdentityID)
}

func TestProfileRepository_Ping(t *testing.T) {
	r := newRepo(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "id", req.URL.Query().Get("select"))
		_, _ = io.WriteString(w, `[]`)
	})

	require.NoError(t, r.Ping(context.Background()))
}
