package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/invites"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/membership"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/ratelimit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/storage/postgres"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtSecret = []byte("api-test-secret")

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(postgres.SQLiteSchema)
	require.NoError(t, err)

	store := postgres.NewStore(db)
	svc := membership.NewService(store, invites.NewManager("https://app.example.com"))
	verifier, err := auth.NewJWTVerifier(auth.JWTConfig{Secret: jwtSecret})
	require.NoError(t, err)

	srv := NewServer(svc, tenant.NewResolver(store), verifier, opts...)
	return &testServer{t: t, router: srv.Router()}
}

func bearer(t *testing.T, userID, email string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Email:         email,
		EmailVerified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwtSecret)
	require.NoError(t, err)
	return "Bearer " + token
}

var (
	owner = [2]string{"user-owner", "owner@example.com"}
	bob   = [2]string{"user-bob", "bob@example.com"}
	carol = [2]string{"user-carol", "carol@example.com"}
)

func (ts *testServer) do(user [2]string, method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user[0] != "" {
		req.Header.Set("Authorization", bearer(ts.t, user[0], user[1]))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[httputil.ErrorResponse](t, w).Code
}

// setupOrg creates acme as owner and invites and admits bob as a member
func (ts *testServer) setupOrg() (memberID int64) {
	t := ts.t
	w := ts.do(owner, http.MethodPost, "/v1/orgs", orgs.CreateOrgRequest{Name: "Acme Affiliates", Slug: "acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(owner, http.MethodPost, "/v1/orgs/acme/invitations", orgs.InviteMemberRequest{Email: bob[1], Role: "member"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inv := decode[membership.Invitation](t, w)

	w = ts.do(bob, http.MethodPost, fmt.Sprintf("/v1/invitations/%d/accept", inv.Membership.ID), AcceptInvitationRequest{Token: inv.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return inv.Membership.ID
}

func TestOrganizationLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(owner, http.MethodPost, "/v1/orgs", orgs.CreateOrgRequest{Name: "Acme Affiliates"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[CreateOrganizationResponse](t, w)
	assert.Equal(t, "acme-affiliates", created.Organization.Slug)
	assert.Equal(t, rbac.RoleOwner, created.Membership.Role)

	w = ts.do(carol, http.MethodPost, "/v1/orgs", orgs.CreateOrgRequest{Name: "Other", Slug: "acme-affiliates"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slug_taken", errorCode(t, w))

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme-affiliates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[OrganizationResponse](t, w)
	assert.Equal(t, rbac.RoleOwner, got.Role)
	assert.Contains(t, got.Permissions, rbac.PermOrgDelete)
	assert.Equal(t, []rbac.Role{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleMember, rbac.RoleViewer}, got.AssignableRoles)

	name := "Acme Partners"
	w = ts.do(owner, http.MethodPatch, "/v1/orgs/acme-affiliates", orgs.UpdateOrgRequest{Name: &name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, name, decode[orgs.Organization](t, w).Name)

	w = ts.do(owner, http.MethodGet, "/v1/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tc := decode[tenant.Context](t, w)
	assert.Equal(t, "user-owner", tc.User.UserID)
	assert.Equal(t, name, tc.Organization.Name)

	w = ts.do(owner, http.MethodDelete, "/v1/orgs/acme-affiliates", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme-affiliates", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "no_organization", errorCode(t, w))
}

func TestMembershipFlow(t *testing.T) {
	ts := newTestServer(t)
	bobID := ts.setupOrg()

	w := ts.do(bob, http.MethodGet, "/v1/orgs/acme/members", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*orgs.Membership](t, w), 2)

	w = ts.do(bob, http.MethodPost, "/v1/orgs/acme/invitations", orgs.InviteMemberRequest{Email: carol[1], Role: "viewer"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(owner, http.MethodPatch, fmt.Sprintf("/v1/orgs/acme/members/%d", bobID), orgs.UpdateMemberRequest{Role: "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, rbac.RoleAdmin, decode[orgs.Membership](t, w).Role)

	w = ts.do(owner, http.MethodPatch, fmt.Sprintf("/v1/orgs/acme/members/%d", bobID), orgs.UpdateMemberRequest{Role: "superuser"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_role", errorCode(t, w))

	w = ts.do(owner, http.MethodPatch, fmt.Sprintf("/v1/orgs/acme/members/%d", bobID), orgs.UpdateMemberRequest{Role: "owner"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(owner, http.MethodDelete, fmt.Sprintf("/v1/orgs/acme/members/%d", bobID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(bob, http.MethodGet, "/v1/orgs/acme/members", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInvitations(t *testing.T) {
	ts := newTestServer(t)
	ts.setupOrg()

	w := ts.do(owner, http.MethodPost, "/v1/orgs/acme/invitations", orgs.InviteMemberRequest{Email: carol[1], Role: "viewer"})
	require.Equal(t, http.StatusCreated, w.Code)
	inv := decode[membership.Invitation](t, w)
	assert.Len(t, inv.Token, 64)
	assert.Equal(t, fmt.Sprintf("https://app.example.com/invite/%s?member=%d", inv.Token, inv.Membership.ID), inv.URL)
	accept := fmt.Sprintf("/v1/invitations/%d/accept", inv.Membership.ID)

	w = ts.do(owner, http.MethodPost, "/v1/orgs/acme/invitations", orgs.InviteMemberRequest{Email: bob[1], Role: "viewer"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_member", errorCode(t, w))

	w = ts.do(bob, http.MethodPost, accept, AcceptInvitationRequest{Token: inv.Token})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "email_mismatch", errorCode(t, w))

	w = ts.do(carol, http.MethodPost, accept, AcceptInvitationRequest{Token: strings.Repeat("0", 64)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(owner, http.MethodDelete, fmt.Sprintf("/v1/orgs/acme/invitations/%d", inv.Membership.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(carol, http.MethodPost, accept, AcceptInvitationRequest{Token: inv.Token})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do([2]string{}, http.MethodPost, accept, AcceptInvitationRequest{Token: inv.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAcceptIsRateLimited(t *testing.T) {
	limiter := ratelimit.NewLocalLimiter(ratelimit.Config{Limit: 2, Window: time.Hour})
	ts := newTestServer(t, WithAcceptLimiter(limiter))
	ts.setupOrg() // uses one accept

	guess := AcceptInvitationRequest{Token: strings.Repeat("a", 64)}
	w := ts.do(bob, http.MethodPost, "/v1/invitations/999/accept", guess)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(bob, http.MethodPost, "/v1/invitations/999/accept", guess)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = ts.do(carol, http.MethodPost, "/v1/invitations/999/accept", guess)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantIsolation(t *testing.T) {
	ts := newTestServer(t)
	ts.setupOrg()

	w := ts.do(carol, http.MethodPost, "/v1/orgs", orgs.CreateOrgRequest{Name: "Globex", Slug: "globex"})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, path := range []string{"/v1/orgs/acme", "/v1/orgs/acme/members", "/v1/orgs/acme/audit"} {
		w = ts.do(carol, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}

	w = ts.do([2]string{}, http.MethodGet, "/v1/orgs/acme", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditLog(t *testing.T) {
	ts := newTestServer(t)
	ts.setupOrg()

	w := ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]*audit.Entry](t, w)
	require.Len(t, entries, 3)
	assert.Equal(t, audit.ActionInviteAccepted, entries[0].Action)

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit?action=invite_sent,org_created&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries = decode[[]*audit.Entry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionInviteSent, entries[0].Action)

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit?performed_by=user-bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]*audit.Entry](t, w), 1)

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Len(t, strings.Split(strings.TrimSpace(w.Body.String()), "\n"), 4)

	w = ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit?format=ndjson", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	tests := []struct {
		name  string
		query string
	}{
		{"unknown format", "format=xml"},
		{"unknown action", "action=member_hacked"},
		{"bad time", "since=yesterday"},
		{"bad limit", "limit=ten"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(owner, http.MethodGet, "/v1/orgs/acme/audit?"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	w = ts.do(bob, http.MethodGet, "/v1/orgs/acme/audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.setupOrg()

	req := httptest.NewRequest(http.MethodPost, "/v1/orgs/acme/invitations", strings.NewReader(`{"email":"x@example.com","role":"viewer","admin":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, owner[0], owner[1]))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(owner, http.MethodPost, "/v1/orgs/acme/invitations", orgs.InviteMemberRequest{Email: "not-an-email", Role: "viewer"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorCode(t, w))

	w = ts.do(owner, http.MethodGet, "/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
