package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/efir-portal/efir-api/api/handlers"
	"github.com/efir-portal/efir-api/api/testhelpers"
	"github.com/efir-portal/efir-api/config"
	"github.com/efir-portal/efir-api/models"
)

const testPassword = "secret123"

type harness struct {
	t      *testing.T
	app    *handlers.App
	server http.Handler
	users  *testhelpers.UserStore
	firs   *testhelpers.FirStore
	outbox *testhelpers.Outbox
}

func newHarness(t *testing.T, opts ...func(*handlers.App)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		users:  testhelpers.NewUserStore(),
		firs:   testhelpers.NewFirStore(),
		outbox: &testhelpers.Outbox{},
	}
	h.app = &handlers.App{
		Config: config.Config{
			Env:              "test",
			JWTSecret:        "test-secret",
			TokenTTL:         time.Hour,
			UploadDir:        t.TempDir(),
			MaxEvidenceFiles: 5,
			MaxUploadMB:      25,
			CORSOrigins:      []string{"http://localhost:5173"},
		},
		UserDB: h.users,
		FirDB:  h.firs,
		Mailer: h.outbox,
	}
	for _, o := range opts {
		o(h.app)
	}
	require.NoError(t, h.app.Setup())
	t.Cleanup(h.app.Close)
	h.server = h.app.Handler()
	return h
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)
	return rr
}

func (h *harness) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.serve(req)
}

func (h *harness) upload(path, token string, fields map[string]string, files int) *httptest.ResponseRecorder {
	h.t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(h.t, w.WriteField(k, v))
	}
	for i := 0; i < files; i++ {
		part, err := w.CreateFormFile("evidence", "photo"+strconv.Itoa(i)+".jpg")
		require.NoError(h.t, err)
		_, err = part.Write([]byte("evidence-" + strconv.Itoa(i)))
		require.NoError(h.t, err)
	}
	require.NoError(h.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.serve(req)
}

func (h *harness) addUser(name, email string, role models.Role, badge string, approved bool) *models.User {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(h.t, err)
	u := &models.User{
		Name:       name,
		Email:      email,
		Password:   string(hash),
		Role:       role,
		BadgeID:    badge,
		IsApproved: approved,
	}
	require.NoError(h.t, h.users.InsertOne(context.Background(), u))
	return u
}

func (h *harness) login(body map[string]string) string {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/auth/login", body, "")
	require.Equal(h.t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(h.t, rr, &resp)
	require.NotEmpty(h.t, resp.Token)
	return resp.Token
}

// citizen stores a citizen account and logs it in
func (h *harness) citizen(name, email string) (*models.User, string) {
	u := h.addUser(name, email, models.RoleCitizen, "", false)
	return u, h.login(map[string]string{"email": email, "password": testPassword})
}

func (h *harness) officer(name, badge string) (*models.User, string) {
	u := h.addUser(name, badge+"@police.gov", models.RoleOfficer, badge, true)
	return u, h.login(map[string]string{"badgeId": badge, "password": testPassword})
}

func (h *harness) admin() (*models.User, string) {
	u := h.addUser("System Admin", "admin@fir.gov.in", models.RoleAdmin, "", true)
	return u, h.login(map[string]string{"email": "admin@fir.gov.in", "password": testPassword})
}

func (h *harness) file(token string, fields map[string]string) models.Fir {
	h.t.Helper()
	rr := h.do(http.MethodPost, "/api/firs/create", fields, token)
	require.Equal(h.t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp struct {
		Fir models.Fir `json:"fir"`
	}
	decode(h.t, rr, &resp)
	return resp.Fir
}

func firFields(city string) map[string]string {
	return map[string]string{
		"incidentType":   "Theft",
		"description":    "Phone snatched near the bus stop",
		"dateOfIncident": "2026-02-14",
		"timeOfIncident": "21:15",
		"address":        "MG Road",
		"city":           city,
		"state":          "Delhi",
		"pincode":        "110001",
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	decode(t, rr, &resp)
	assert.False(t, resp.Success)
	return resp.Message
}

func TestHealthCheckRoute(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alive":true}`, rr.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/asdf", nil, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Route not found", errorMessage(t, rr))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/firs/create", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := h.serve(req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestIDHeader(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/auth/me", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestEndToEndJourney(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/auth/register", map[string]string{
		"name":     "Asha Verma",
		"email":    "Asha@Example.com",
		"password": testPassword,
		"phone":    "9000000001",
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	citizenToken := h.login(map[string]string{"email": "asha@example.com", "password": testPassword})
	citizen, err := h.users.FindByEmail(context.Background(), "asha@example.com")
	require.NoError(t, err)

	rr = h.upload("/api/firs/create", citizenToken, firFields("New Delhi"), 2)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Success bool       `json:"success"`
		Message string     `json:"message"`
		Fir     models.Fir `json:"fir"`
	}
	decode(t, rr, &created)
	assert.Equal(t, "FIR submitted successfully", created.Message)
	assert.Equal(t, models.IncidentTheft, created.Fir.IncidentType)
	require.NotNil(t, created.Fir.Complainant)
	assert.Equal(t, citizen.ID, *created.Fir.Complainant)
	require.Len(t, created.Fir.Evidence, 2)

	evidence := h.do(http.MethodGet, "/"+created.Fir.Evidence[0], nil, "")
	assert.Equal(t, http.StatusOK, evidence.Code)
	assert.Contains(t, evidence.Body.String(), "evidence-")

	officer, officerToken := h.officer("Inspector Vijay", "OFFICER123")

	rr = h.do(http.MethodPut, "/api/firs/update/"+created.Fir.ID.Hex(), map[string]string{"status": "In Progress"}, officerToken)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = h.do(http.MethodGet, "/api/firs/my-firs", nil, citizenToken)
	require.Equal(t, http.StatusOK, rr.Code)
	var mine struct {
		Success bool         `json:"success"`
		Firs    []models.Fir `json:"firs"`
	}
	decode(t, rr, &mine)
	require.Len(t, mine.Firs, 1)
	assert.Equal(t, models.StatusInProgress, mine.Firs[0].Status)
	require.NotNil(t, mine.Firs[0].AssignedOfficer)
	assert.Equal(t, officer.ID, *mine.Firs[0].AssignedOfficer)

	h.app.Engine.Wait()
	sent := h.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "asha@example.com", sent[0].ToAddress)
	assert.Contains(t, sent[0].Subject, "In Progress")
}
