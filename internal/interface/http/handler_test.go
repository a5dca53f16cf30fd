package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-user-auth/config"
	"github.com/oksasatya/go-user-auth/internal/application"
	"github.com/oksasatya/go-user-auth/internal/domain/entity"
	"github.com/oksasatya/go-user-auth/internal/infrastructure/memory"
	"github.com/oksasatya/go-user-auth/internal/interface/middleware"
	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	validation.Init()
}

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   json.RawMessage `json:"error"`
}

type session struct {
	User         entity.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

type testEnv struct {
	engine  *gin.Engine
	store   *memory.Store
	metrics *middleware.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{AppName: "test", Env: "development", VerifyEmailURL: "http://app.test/verify"}
	logger := helpers.NewNopLogger()
	store := memory.NewStore()
	hasher := helpers.NewPasswordHasher(bcrypt.MinCost, 2)
	jwt := helpers.NewJWTManager("handler-secret", time.Minute)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	auth := application.NewAuthService(cfg, store.Users(), store.Tokens(), hasher, jwt, logger)
	users := application.NewUserService(store.Users(), store.Tokens(), hasher, nil, logger)
	verifier := application.NewEmailVerifier(store.Users(), rdb, nil, logger, cfg.AppName, cfg.VerifyEmailURL)
	metrics := middleware.NewMetrics("test", prometheus.NewRegistry())

	ah := NewAuthHandler(auth, users, verifier, metrics, logger, cfg)
	uh := NewUserHandler(users, logger)

	r := gin.New()
	r.Use(middleware.ErrorHandler(logger, false))
	r.NoRoute(NotFound)
	api := r.Group("/api")
	protect := middleware.Protect(auth)
	admin := middleware.Authorize(entity.RoleAdmin)

	api.POST("/auth/register", ah.Register)
	api.POST("/auth/login", ah.Login)
	api.POST("/auth/refresh", ah.Refresh)
	api.POST("/auth/logout", ah.Logout)
	api.GET("/auth/profile", protect, ah.GetProfile)
	api.PUT("/auth/profile", protect, ah.UpdateProfile)
	api.PUT("/auth/change-password", protect, ah.ChangePassword)
	api.POST("/auth/verify/init", protect, ah.VerifyInit)
	api.POST("/auth/verify/confirm", ah.VerifyConfirm)

	api.GET("/users", protect, admin, uh.List)
	api.GET("/users/search", protect, admin, uh.Search)
	api.POST("/users", protect, admin, uh.Create)
	api.GET("/users/:id", protect, uh.Get)
	api.PUT("/users/:id", protect, admin, uh.Update)
	api.DELETE("/users/:id", protect, admin, uh.Delete)

	return &testEnv{engine: r, store: store, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (e *testEnv) register(t *testing.T, name, email string) session {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": name, "email": email, "password": "Secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

func (e *testEnv) login(t *testing.T, email, password string) session {
	t.Helper()
	w, env := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

func (e *testEnv) promote(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.store.Users().GetByID(ctx, id)
	require.NoError(t, err)
	u.Role = entity.RoleAdmin
	require.NoError(t, e.store.Users().Update(ctx, u))
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == helpers.RefreshCookieName {
			return ck
		}
	}
	return nil
}

func TestRegister(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "Ann@X.com", "password": "Secret1", "age": 30})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "User registered successfully", env.Message)

	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.NotEmpty(t, s.AccessToken)
	assert.Empty(t, s.RefreshToken, "register hands out the refresh token in the cookie only")
	assert.Equal(t, "ann@x.com", s.User.Email)
	assert.Equal(t, entity.RoleUser, s.User.Role)
	assert.NotContains(t, w.Body.String(), "password")

	ck := refreshCookie(w)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, int(entity.RefreshTokenTTL.Seconds()), ck.MaxAge)
	assert.Equal(t, 1, e.store.Tokens().Count(s.User.ID))

	w, env = e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ann", "email": "ann@x.com", "password": "Secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "user already exists with this email", env.Message)

	w, env = e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Bob", "email": "bob@x.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, string(env.Error), `"password"`)

	w, _ = e.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Bob", "email": "bob@x.com", "password": "Secret1", "role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.AuthEvents.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.AuthEvents.WithLabelValues("register", "rejected")))
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	reg := e.register(t, "Ann", "ann@x.com")

	w, env := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@x.com", "password": "Secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Login successful", env.Message)
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, reg.User.ID, s.User.ID)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	ck := refreshCookie(w)
	require.NotNil(t, ck)
	assert.Equal(t, s.RefreshToken, ck.Value)
	assert.Equal(t, 1, e.store.Tokens().Count(reg.User.ID), "login replaces the user's previous refresh row")

	for _, body := range []gin.H{
		{"email": "ann@x.com", "password": "Wrong1"},
		{"email": "nobody@x.com", "password": "Secret1"},
	} {
		w, env = e.do(t, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid credentials", env.Message)
	}

	w, _ = e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ann", "ann@x.com")
	s := e.login(t, "ann@x.com", "Secret1")
	ck := &http.Cookie{Name: helpers.RefreshCookieName, Value: s.RefreshToken}

	w, env := e.do(t, http.MethodPost, "/api/auth/refresh", "", nil, ck)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var r session
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.NotEmpty(t, r.AccessToken)
	assert.Equal(t, s.User.ID, r.User.ID)
	assert.Nil(t, refreshCookie(w), "refresh does not rotate the cookie")

	w, _ = e.do(t, http.MethodGet, "/api/auth/profile", r.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// the same token keeps working, and the JSON body is accepted too
	w, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = e.do(t, http.MethodPost, "/api/auth/refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "not authorized, refresh token not provided", env.Message)

	w, env = e.do(t, http.MethodPost, "/api/auth/refresh", "", gin.H{"refreshToken": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", env.Message)

	w, env = e.do(t, http.MethodPost, "/api/auth/logout", "", nil, ck)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logout successful", env.Message)
	cleared := refreshCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, 0, e.store.Tokens().Count(s.User.ID))

	w, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", nil, ck)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// logging out twice is harmless
	w, _ = e.do(t, http.MethodPost, "/api/auth/logout", "", nil, ck)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProfile(t *testing.T) {
	e := newTestEnv(t)
	s := e.register(t, "Ann", "ann@x.com")
	e.register(t, "Bob", "bob@x.com")

	w, env := e.do(t, http.MethodGet, "/api/auth/profile", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "ann@x.com", u.Email)

	w, _ = e.do(t, http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = e.do(t, http.MethodPut, "/api/auth/profile", s.AccessToken, gin.H{"name": "Annie", "email": "annie@x.com", "age": 31, "role": "admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "Annie", u.Name)
	assert.Equal(t, "annie@x.com", u.Email)
	assert.Equal(t, entity.RoleUser, u.Role, "profile edits cannot change the role")

	w, _ = e.do(t, http.MethodPut, "/api/auth/profile", s.AccessToken, gin.H{"name": "Annie", "email": "bob@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = e.do(t, http.MethodPut, "/api/auth/profile", s.AccessToken, gin.H{"name": "Annie"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv(t)
	e.register(t, "Ann", "ann@x.com")
	s := e.login(t, "ann@x.com", "Secret1")
	ck := &http.Cookie{Name: helpers.RefreshCookieName, Value: s.RefreshToken}

	w, env := e.do(t, http.MethodPut, "/api/auth/change-password", s.AccessToken, gin.H{"currentPassword": "Wrong1", "newPassword": "Better2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, application.ErrCredentialMismatch.Error(), env.Message)

	w, _ = e.do(t, http.MethodPut, "/api/auth/change-password", s.AccessToken, gin.H{"currentPassword": "Secret1", "newPassword": "weak"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodPut, "/api/auth/change-password", s.AccessToken, gin.H{"currentPassword": "Secret1", "newPassword": "Better2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Password changed successfully. Please login again.", env.Message)
	assert.Equal(t, 0, e.store.Tokens().Count(s.User.ID))

	w, _ = e.do(t, http.MethodPost, "/api/auth/refresh", "", nil, ck)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@x.com", "password": "Secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	e.login(t, "ann@x.com", "Better2")
}

func TestAdminRouteAfterPromotion(t *testing.T) {
	e := newTestEnv(t)
	reg := e.register(t, "A", "a@x.com")
	s := e.login(t, "a@x.com", "Secret1")
	assert.NotEmpty(t, s.RefreshToken)

	w, env := e.do(t, http.MethodGet, "/api/users", s.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden: user role 'user' is not authorized to access this route", env.Message)

	e.promote(t, reg.User.ID)
	s = e.login(t, "a@x.com", "Secret1")

	w, env = e.do(t, http.MethodGet, "/api/users", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestUserAdministration(t *testing.T) {
	e := newTestEnv(t)
	root := e.register(t, "Root", "root@x.com")
	e.promote(t, root.User.ID)
	ann := e.register(t, "Ann", "ann@x.com")
	tok := root.AccessToken

	w, env := e.do(t, http.MethodPost, "/api/users", tok, gin.H{"name": "Bob", "email": "bob@x.com", "password": "Secret1", "role": "user"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bob entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &bob))

	w, _ = e.do(t, http.MethodPost, "/api/users", tok, gin.H{"name": "Bob", "email": "bob@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/users?limit=2", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":2,"limit":2,"offset":0}`, string(env.Meta))

	w, _ = e.do(t, http.MethodGet, "/api/users?limit=0&offset=-1", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/users/search?q=bob", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found []entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &found))
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)

	w, _ = e.do(t, http.MethodGet, "/api/users/search", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodPut, "/api/users/"+bob.ID, tok, gin.H{"role": "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, entity.RoleAdmin, updated.Role)

	w, _ = e.do(t, http.MethodPut, "/api/users/"+bob.ID, tok, gin.H{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// admin or self on GET /users/:id
	w, _ = e.do(t, http.MethodGet, "/api/users/"+ann.User.ID, ann.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/users/"+bob.ID, ann.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/users/"+ann.User.ID, tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/users/missing", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, http.MethodDelete, "/api/users/"+ann.User.ID, ann.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = e.do(t, http.MethodDelete, "/api/users/"+ann.User.ID, tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User deleted successfully", env.Message)
	assert.Equal(t, 0, e.store.Tokens().Count(ann.User.ID))

	w, _ = e.do(t, http.MethodDelete, "/api/users/"+ann.User.ID, tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// the deleted user's access token no longer resolves
	w, _ = e.do(t, http.MethodGet, "/api/auth/profile", ann.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmailVerification(t *testing.T) {
	e := newTestEnv(t)
	s := e.register(t, "Ann", "ann@x.com")

	w, env := e.do(t, http.MethodPost, "/api/auth/verify/init", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var init struct {
		AlreadyVerified bool   `json:"already_verified"`
		VerifyLink      string `json:"verify_link"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &init))
	assert.False(t, init.AlreadyVerified)
	link, err := url.Parse(init.VerifyLink)
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	w, _ = e.do(t, http.MethodPost, "/api/auth/verify/confirm", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = e.do(t, http.MethodPost, "/api/auth/verify/confirm", "", gin.H{"token": token})
	assert.Equal(t, http.StatusBadRequest, w.Code, "tokens are single use")

	w, env = e.do(t, http.MethodPost, "/api/auth/verify/init", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"already_verified":true}`, string(env.Data))

	w, env = e.do(t, http.MethodGet, "/api/auth/profile", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var u entity.PublicUser
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.True(t, u.EmailVerified)
}

func TestStoreFailureIsOpaque(t *testing.T) {
	e := newTestEnv(t)
	e.store.Fail = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	w, env := e.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ann@x.com", "password": "Secret1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", env.Message)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.AuthEvents.WithLabelValues("login", "error")))
}

func TestHealthAndNotFound(t *testing.T) {
	down := errors.New("down")
	for _, tc := range []struct {
		name   string
		redis  error
		status int
	}{
		{"healthy", nil, http.StatusOK},
		{"degraded", down, http.StatusServiceUnavailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler("test", helpers.NewNopLogger(), map[string]HealthCheck{
				"postgres": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return tc.redis },
			})
			r := gin.New()
			r.GET("/health", h.Health)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), `"postgres":"up"`)
		})
	}

	e := newTestEnv(t)
	w, env := e.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route /api/nope not found", env.Message)
}
