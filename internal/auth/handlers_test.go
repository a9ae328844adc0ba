package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/apierror"
	"github.com/jimdaga/mediecho/internal/models"
	"github.com/jimdaga/mediecho/internal/testutil"
	"gorm.io/gorm"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB, *TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	tokens := NewTokenService("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	errs := apierror.Responder{}
	h := NewHandler(db, tokens, errs)

	r := gin.New()
	r.Use(sessions.Sessions("mediecho_session", cookie.NewStore([]byte("test-session-secret"))))

	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)
	r.POST("/api/auth/logout", h.Logout)

	protected := r.Group("/api", RequireAuth(db, tokens, errs))
	protected.GET("/auth/me", h.Me)
	protected.PUT("/users/me", h.UpdateProfile)

	return r, db, tokens
}

func doJSON(r http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details []string        `json:"details"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return env
}

func TestRegisterAndMe(t *testing.T) {
	r, db, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", gin.H{
		"email":    "  Alice@Example.com ",
		"password": "secret1",
		"name":     "Alice",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(decode(t, w).Data, &resp); err != nil {
		t.Fatalf("invalid auth response: %v", err)
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.User.SubscriptionPlan != "free" {
		t.Errorf("expected free plan, got %q", resp.User.SubscriptionPlan)
	}
	if resp.Token == "" || resp.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}

	var stored models.User
	db.Where("email = ?", "alice@example.com").First(&stored)
	if stored.PasswordHash == "secret1" || !CheckPassword(stored.PasswordHash, "secret1") {
		t.Error("expected password stored as bcrypt hash")
	}

	w = doJSON(r, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + resp.Token}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d: %s", w.Code, w.Body.String())
	}
	var me UserView
	json.Unmarshal(decode(t, w).Data, &me)
	if me.Name != "Alice" {
		t.Errorf("expected name Alice, got %q", me.Name)
	}
}

func TestRegisterValidation(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", gin.H{"email": "nope", "password": "123"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	env := decode(t, w)
	if env.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", env.Code)
	}
	if len(env.Details) != 2 {
		t.Errorf("expected 2 field details, got %v", env.Details)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r, _, _ := setupRouter(t)

	body := gin.H{"email": "bob@example.com", "password": "secret1"}
	if w := doJSON(r, http.MethodPost, "/api/auth/register", body, nil); w.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", w.Code)
	}
	w := doJSON(r, http.MethodPost, "/api/auth/register", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate, got %d", w.Code)
	}
	if env := decode(t, w); env.Error != "User already exists" {
		t.Errorf("unexpected error %q", env.Error)
	}
}

func TestLogin(t *testing.T) {
	r, db, _ := setupRouter(t)

	hash, _ := HashPassword("secret1")
	db.Create(&models.User{Email: "carol@example.com", PasswordHash: hash})

	w := doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"email": "carol@example.com", "password": "wrong"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"email": "nobody@example.com", "password": "secret1"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/auth/login", gin.H{"email": "carol@example.com", "password": "secret1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var stored models.User
	db.Where("email = ?", "carol@example.com").First(&stored)
	if stored.LastLoginAt == nil {
		t.Error("expected last login timestamp to be recorded")
	}
}

func TestSessionCookieAuthenticates(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := doJSON(r, http.MethodPost, "/api/auth/register", gin.H{"email": "dan@example.com", "password": "secret1"}, nil)
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie on register")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected cookie-authenticated /me to succeed, got %d", w.Code)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	r, _, tokens := setupRouter(t)

	tests := []struct {
		name   string
		header http.Header
	}{
		{"missing token", nil},
		{"malformed header", http.Header{"Authorization": {"Token abc"}}},
		{"bad token", http.Header{"Authorization": {"Bearer not-a-jwt"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodGet, "/api/auth/me", nil, tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
		})
	}

	t.Run("deleted user", func(t *testing.T) {
		token, _ := tokens.GenerateAccessToken(9999)
		w := doJSON(r, http.MethodGet, "/api/auth/me", nil, http.Header{"Authorization": {"Bearer " + token}})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
		if env := decode(t, w); env.Error != "User not found" {
			t.Errorf("unexpected error %q", env.Error)
		}
	})
}

func TestRefresh(t *testing.T) {
	r, db, tokens := setupRouter(t)
	user := testutil.CreateUser(t, db, "erin@example.com", models.PlanFree, models.SubscriptionNone)

	refresh, _ := tokens.GenerateRefreshToken(user.ID)
	w := doJSON(r, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": refresh}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	access, _ := tokens.GenerateAccessToken(user.ID)
	w = doJSON(r, http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": access}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected access token to be refused for refresh, got %d", w.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	r, db, tokens := setupRouter(t)
	user := testutil.CreateUser(t, db, "fay@example.com", models.PlanFree, models.SubscriptionNone)
	token, _ := tokens.GenerateAccessToken(user.ID)

	w := doJSON(r, http.MethodPut, "/api/users/me", gin.H{
		"name":     "Fay",
		"settings": gin.H{"notifications": false},
	}, http.Header{"Authorization": {"Bearer " + token}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var stored models.User
	db.First(&stored, user.ID)
	if stored.Name != "Fay" {
		t.Errorf("expected name Fay, got %q", stored.Name)
	}
	if stored.Notifications {
		t.Error("expected notifications disabled")
	}
	if !stored.PrivacyLocalFirst {
		t.Error("expected privacyLocalFirst to stay enabled")
	}
}
