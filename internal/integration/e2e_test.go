package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/beehold/beehold/internal/app"
	"github.com/beehold/beehold/internal/auth"
	"github.com/beehold/beehold/internal/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type successEnvelope struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "dev",
		HTTPAddr:        ":0",
		BaseURL:         "http://localhost",
		DBDSN:           "unused",
		JWTSecret:       "test-secret",
		LogLevel:        "error",
		RateLimitRPM:    120,
		SessionDays:     7,
		InviteTTLDays:   7,
		NotifyTimeoutMS: 2000,
	}
}

func newCSRFClient(t *testing.T, serverURL string) (*http.Client, string) {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	baseURL, err := url.Parse(serverURL)
	require.NoError(t, err)

	csrfToken, err := auth.GenerateCSRFToken()
	require.NoError(t, err)
	jar.SetCookies(baseURL, []*http.Cookie{{
		Name:  auth.CSRFCookieName,
		Value: csrfToken,
		Path:  "/",
	}})

	return client, csrfToken
}

func doJSON(t *testing.T, client *http.Client, method, url, csrfToken string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if csrfToken != "" {
		req.Header.Set("X-CSRF-Token", csrfToken)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeSuccess(t *testing.T, resp *http.Response, wantStatus int, dest any) {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", raw)

	var envelope successEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	if dest != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, dest))
	}
}

func decodeError(t *testing.T, resp *http.Response, wantStatus int) errorEnvelope {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "body: %s", raw)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	return envelope
}

func signupAndLogin(t *testing.T, client *http.Client, baseURL, csrfToken, email, password string) uuid.UUID {
	t.Helper()

	var signup struct {
		UserID uuid.UUID `json:"user_id"`
	}
	resp := doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/signup", csrfToken, map[string]any{
		"email":    email,
		"password": password,
	})
	decodeSuccess(t, resp, http.StatusCreated, &signup)
	require.NotEqual(t, uuid.Nil, signup.UserID)

	resp = doJSON(t, client, http.MethodPost, baseURL+"/api/v1/auth/login", csrfToken, map[string]any{
		"email":    email,
		"password": password,
	})
	decodeSuccess(t, resp, http.StatusOK, nil)

	return signup.UserID
}

func TestE2E_GroupInviteAcceptAndRBAC(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	adminClient, adminCSRF := newCSRFClient(t, srv.URL)
	inviteeClient, inviteeCSRF := newCSRFClient(t, srv.URL)

	signupAndLogin(t, adminClient, srv.URL, adminCSRF, "keeper@example.com", "password123")
	inviteeID := signupAndLogin(t, inviteeClient, srv.URL, inviteeCSRF, "helper@example.com", "password123")

	// Create a group.
	var group struct {
		ID   uuid.UUID `json:"id"`
		Role string    `json:"role"`
	}
	resp := doJSON(t, adminClient, http.MethodPost, srv.URL+"/api/v1/groups/", adminCSRF, map[string]any{
		"name":        "Valley beekeepers",
		"description": "Shared yards in the valley",
	})
	decodeSuccess(t, resp, http.StatusCreated, &group)
	require.Equal(t, "admin", group.Role)

	// Invite the helper as editor.
	var invite struct {
		Token string `json:"token"`
	}
	resp = doJSON(t, adminClient, http.MethodPost, srv.URL+"/api/v1/groups/"+group.ID.String()+"/invites", adminCSRF, map[string]any{
		"email": "helper@example.com",
		"role":  "editor",
	})
	decodeSuccess(t, resp, http.StatusCreated, &invite)
	require.NotEmpty(t, invite.Token)

	// A duplicate open invite conflicts.
	resp = doJSON(t, adminClient, http.MethodPost, srv.URL+"/api/v1/groups/"+group.ID.String()+"/invites", adminCSRF, map[string]any{
		"email": "helper@example.com",
		"role":  "viewer",
	})
	errEnv := decodeError(t, resp, http.StatusConflict)
	require.Equal(t, "conflict", errEnv.Error.Code)

	// The helper accepts.
	var accept struct {
		GroupID         uuid.UUID `json:"group_id"`
		Role            string    `json:"role"`
		MembershipAdded bool      `json:"membership_added"`
	}
	resp = doJSON(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/"+invite.Token+"/accept", inviteeCSRF, nil)
	decodeSuccess(t, resp, http.StatusOK, &accept)
	require.Equal(t, group.ID, accept.GroupID)
	require.Equal(t, "editor", accept.Role)
	require.True(t, accept.MembershipAdded)

	// Accepting again is a no-op success.
	resp = doJSON(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/invites/"+invite.Token+"/accept", inviteeCSRF, nil)
	decodeSuccess(t, resp, http.StatusOK, &accept)
	require.False(t, accept.MembershipAdded)

	// Both users now appear as members.
	var members struct {
		Members []struct {
			UserID uuid.UUID `json:"user_id"`
			Role   string    `json:"role"`
		} `json:"members"`
	}
	resp = doJSON(t, adminClient, http.MethodGet, srv.URL+"/api/v1/groups/"+group.ID.String()+"/members", "", nil)
	decodeSuccess(t, resp, http.StatusOK, &members)
	require.Len(t, members.Members, 2)

	// The admin shares an apiary with the group.
	var apiary struct {
		ID uuid.UUID `json:"id"`
	}
	resp = doJSON(t, adminClient, http.MethodPost, srv.URL+"/api/v1/apiaries/", adminCSRF, map[string]any{
		"name":     "Home yard",
		"location": "Behind the barn",
		"group_id": group.ID.String(),
	})
	decodeSuccess(t, resp, http.StatusCreated, &apiary)

	// Before sharing, the editor cannot see it.
	resp = doJSON(t, inviteeClient, http.MethodGet, srv.URL+"/api/v1/apiaries/"+apiary.ID.String(), "", nil)
	decodeError(t, resp, http.StatusNotFound)

	resp = doJSON(t, adminClient, http.MethodPut, srv.URL+"/api/v1/apiaries/"+apiary.ID.String()+"/sharing", adminCSRF, map[string]any{
		"shared": true,
	})
	decodeSuccess(t, resp, http.StatusOK, nil)

	// Now the editor can read and write hives, but not administer.
	resp = doJSON(t, inviteeClient, http.MethodGet, srv.URL+"/api/v1/apiaries/"+apiary.ID.String(), "", nil)
	decodeSuccess(t, resp, http.StatusOK, nil)

	var hive struct {
		ID uuid.UUID `json:"id"`
	}
	resp = doJSON(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/apiaries/"+apiary.ID.String()+"/hives", inviteeCSRF, map[string]any{
		"label": "Hive 7",
	})
	decodeSuccess(t, resp, http.StatusCreated, &hive)

	resp = doJSON(t, inviteeClient, http.MethodDelete, srv.URL+"/api/v1/apiaries/"+apiary.ID.String(), inviteeCSRF, nil)
	errEnv = decodeError(t, resp, http.StatusForbidden)
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// The decision endpoint agrees with the middleware.
	var decision struct {
		Allowed bool   `json:"allowed"`
		Reason  string `json:"reason"`
	}
	resp = doJSON(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/authz/decide", inviteeCSRF, map[string]any{
		"resource_kind": "apiary",
		"resource_id":   apiary.ID.String(),
		"action":        "administer",
	})
	decodeSuccess(t, resp, http.StatusOK, &decision)
	require.False(t, decision.Allowed)
	require.Equal(t, "insufficient role", decision.Reason)

	// Demote the editor to viewer; writes stop, reads continue.
	resp = doJSON(t, adminClient, http.MethodPut, srv.URL+"/api/v1/groups/"+group.ID.String()+"/members/"+inviteeID.String(), adminCSRF, map[string]any{
		"role": "viewer",
	})
	decodeSuccess(t, resp, http.StatusOK, nil)

	resp = doJSON(t, inviteeClient, http.MethodPost, srv.URL+"/api/v1/apiaries/"+apiary.ID.String()+"/hives", inviteeCSRF, map[string]any{
		"label": "Hive 8",
	})
	decodeError(t, resp, http.StatusForbidden)

	resp = doJSON(t, inviteeClient, http.MethodGet, srv.URL+"/api/v1/apiaries/"+apiary.ID.String()+"/hives", "", nil)
	decodeSuccess(t, resp, http.StatusOK, nil)
}

func TestE2E_UnauthenticatedRequestsRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/groups/")
	require.NoError(t, err)
	errEnv := decodeError(t, resp, http.StatusUnauthorized)
	require.Equal(t, "unauthorized", errEnv.Error.Code)
	require.NotEmpty(t, errEnv.Error.RequestID)
}

func TestE2E_CSRFRequiredOnMutations(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	client, csrfToken := newCSRFClient(t, srv.URL)
	signupAndLogin(t, client, srv.URL, csrfToken, "keeper@example.com", "password123")

	// Same session, but no CSRF header on the mutation.
	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/groups/", "", map[string]any{
		"name": "No CSRF",
	})
	errEnv := decodeError(t, resp, http.StatusForbidden)
	require.Equal(t, "forbidden", errEnv.Error.Code)
}

func TestE2E_HealthEndpoints(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, testConfig()))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	decodeSuccess(t, resp, http.StatusOK, nil)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	decodeSuccess(t, resp, http.StatusOK, nil)
}
