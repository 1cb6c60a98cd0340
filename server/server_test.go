package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/audit"
	"github.com/jrsteele09/go-tenant-auth/auth"
	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/jrsteele09/go-tenant-auth/internal/config"
	"github.com/jrsteele09/go-tenant-auth/isolation"
	"github.com/jrsteele09/go-tenant-auth/lockout"
	"github.com/jrsteele09/go-tenant-auth/server"
	"github.com/jrsteele09/go-tenant-auth/store"
	"github.com/jrsteele09/go-tenant-auth/tenants"
	"github.com/jrsteele09/go-tenant-auth/token"
	"github.com/jrsteele09/go-tenant-auth/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	secretStr     = "0123456789abcdef0123456789abcdef"
	adminPassword = "Adm1nPassword"
	userPassword  = "Passw0rdOne"
)

type testFixture struct {
	store      *store.Store
	bus        *events.Bus
	tokens     *token.Manager
	dispatcher *auth.Dispatcher
	accounts   *auth.AccountService
	srv        *server.Server
	http       *httptest.Server
}

func setupTestFixture(t *testing.T, opts ...server.Option) *testFixture {
	t.Helper()
	ctx := context.Background()
	f := &testFixture{}

	scoper := isolation.NewScoper(isolation.WithExemptTables(store.TableTenants, store.TableConfig))
	var err error
	f.store, err = store.Open(ctx, store.Config{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "auth.db"),
	}, scoper, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.store.Close() })
	require.NoError(t, f.store.Migrate(ctx))

	env := config.EnvVars{
		AppName:             "Tenant Auth",
		SystemTenantID:      "system",
		SystemTenantCode:    "000000",
		SystemAdminUser:     "admin",
		SystemAdminPassword: adminPassword,
	}
	require.NoError(t, server.InitialiseSystem(ctx, env, f.store.Tenants(), f.store.Users(), f.store.Settings(), zerolog.Nop()))
	seed(t, f.store)

	f.bus = events.NewBus()
	guard, err := lockout.NewGuard(lockout.NewMemoryStore(time.Now), lockout.WithMaxAttempts(3), lockout.WithPublisher(f.bus))
	require.NoError(t, err)
	f.bus.SubscribeInline(guard.Handle, events.LoginFailed, events.LoginSucceeded)

	recorder, err := audit.NewRecorder(f.store.LoginLogs())
	require.NoError(t, err)
	f.bus.Subscribe(recorder.Handle, audit.RecordedTypes...)
	f.bus.Start(ctx)
	t.Cleanup(f.bus.Close)

	signer, err := token.NewHMACSigner(secretStr)
	require.NoError(t, err)
	f.tokens, err = token.New(signer, token.WithPublisher(f.bus))
	require.NoError(t, err)

	registry, err := auth.NewRegistry(auth.NewPasswordStrategy(f.store.Users()))
	require.NoError(t, err)
	dispatcher, err := auth.NewDispatcher(registry, f.store.Tenants(), f.store.Users(), f.tokens,
		auth.WithLockChecker(guard),
		auth.WithPublisher(f.bus),
	)
	require.NoError(t, err)
	accounts, err := auth.NewAccountService(f.store.Users(), f.tokens,
		auth.WithUnlocker(guard),
		auth.WithAccountPublisher(f.bus),
	)
	require.NoError(t, err)
	f.bus.SubscribeInline(accounts.InvalidateProfile, events.PasswordChanged, events.AccountLocked, events.AccountUnlocked, events.LoginSucceeded)
	f.dispatcher, f.accounts = dispatcher, accounts

	f.srv, err = server.New(dispatcher, accounts, f.tokens, append([]server.Option{
		server.WithLoginLogs(f.store.LoginLogs()),
		server.WithHealthCheck(f.store),
	}, opts...)...)
	require.NoError(t, err)
	f.http = httptest.NewServer(f.srv)
	t.Cleanup(f.http.Close)
	return f
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		tn, err := tenants.New(id, id+"-code", "Tenant "+id)
		require.NoError(t, err)
		require.NoError(t, s.Tenants().Upsert(ctx, tn))
	}

	hash, err := users.HashPassword(userPassword)
	require.NoError(t, err)
	for tenantID, list := range map[string][]*users.User{
		"t1": {
			{Username: "alice", PasswordHash: hash, Status: users.StatusEnabled, Roles: []string{string(users.RoleTenantUser)}},
			{Username: "ops", PasswordHash: hash, Status: users.StatusEnabled, Roles: []string{string(users.RoleTenantAdmin)},
				Permissions: []string{users.PermissionUserList, users.PermissionUserUnlock, users.PermissionLoginLogList}},
		},
		"t2": {
			{Username: "alice", PasswordHash: hash, Status: users.StatusEnabled},
			{Username: "zed", PasswordHash: hash, Status: users.StatusEnabled},
		},
	} {
		tctx := tenants.WithTenant(ctx, tenants.Context{TenantID: tenantID})
		for _, u := range list {
			require.NoError(t, s.Users().Create(tctx, u))
		}
	}
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

func (f *testFixture) do(t *testing.T, req request) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if req.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(req.body))
	}
	r, err := http.NewRequest(req.method, f.http.URL+req.path, &body)
	require.NoError(t, err)
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	resp, err := f.http.Client().Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (f *testFixture) login(t *testing.T, tenantID, username, password, device string) (int, map[string]any) {
	t.Helper()
	return f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthLogin,
		body:    map[string]string{"tenantId": tenantID, "username": username, "password": password, "loginType": "password"},
		headers: map[string]string{server.HeaderDeviceID: device},
	})
}

func (f *testFixture) mustLogin(t *testing.T, tenantID, username, device string) (access, refresh string) {
	t.Helper()
	status, body := f.login(t, tenantID, username, userPassword, device)
	require.Equal(t, http.StatusOK, status, body)
	return body["accessToken"].(string), body["refreshToken"].(string)
}

func bearer(token, device string) map[string]string {
	return map[string]string{server.HeaderAuthorization: "Bearer " + token, server.HeaderDeviceID: device}
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.login(t, "t1", "alice", userPassword, "web")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Bearer", body["tokenType"])
	user := body["user"].(map[string]any)
	require.Equal(t, "t1", user["tenantId"])
	require.Equal(t, "web", user["deviceId"])

	status, body = f.login(t, "t1", "alice", "WrongPass1", "web")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "authentication_failed", body["error"])

	status, body = f.login(t, "t9", "alice", userPassword, "web")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "authentication failed", body["error_description"])

	status, body = f.do(t, request{
		method: http.MethodPost,
		path:   server.RouteAuthLogin,
		body:   map[string]string{"tenantId": "t1", "username": "alice", "loginType": "SMS"},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "unsupported_login_type", body["error"])

	status, _ = f.do(t, request{method: http.MethodPost, path: server.RouteAuthLogin})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestLoginTenantFromHeader(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthLogin,
		body:    map[string]string{"username": "zed", "password": userPassword},
		headers: map[string]string{server.HeaderTenantID: "t2"},
	})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "t2", body["user"].(map[string]any)["tenantId"])
}

func TestBearerRoutes(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.mustLogin(t, "t1", "alice", "phone")

	status, body := f.do(t, request{method: http.MethodGet, path: server.RouteAuthInfo, headers: bearer(access, "phone")})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, "t1", body["tenantId"])

	status, body = f.do(t, request{method: http.MethodGet, path: server.RouteAuthInfo})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "invalid_token", body["error"])

	status, _ = f.do(t, request{method: http.MethodGet, path: server.RouteAuthInfo, headers: bearer(access, "laptop")})
	require.Equal(t, http.StatusUnauthorized, status, "token is bound to its device")

	status, body = f.do(t, request{method: http.MethodGet, path: server.RouteAuthSessions, headers: bearer(access, "phone")})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["sessions"], 1)

	status, _ = f.do(t, request{method: http.MethodGet, path: server.RouteAPIUsers, headers: bearer(access, "phone")})
	require.Equal(t, http.StatusForbidden, status)

	status, body = f.do(t, request{method: http.MethodPost, path: server.RouteAuthLogout, headers: bearer(access, "phone")})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["loggedOut"])

	status, _ = f.do(t, request{method: http.MethodGet, path: server.RouteAuthInfo, headers: bearer(access, "phone")})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestTenantHeaderIgnoredOnBearerRoutes(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.mustLogin(t, "t1", "ops", "web")

	headers := bearer(access, "web")
	headers[server.HeaderTenantID] = "t2"
	status, body := f.do(t, request{method: http.MethodGet, path: server.RouteAPIUsers, headers: headers})
	require.Equal(t, http.StatusOK, status)

	var names []string
	for _, u := range body["users"].([]any) {
		names = append(names, u.(map[string]any)["username"].(string))
	}
	require.Equal(t, []string{"alice", "ops"}, names)
}

func TestRefresh(t *testing.T) {
	f := setupTestFixture(t)
	_, refresh := f.mustLogin(t, "t1", "alice", "web")

	status, body := f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthRefresh,
		headers: map[string]string{server.HeaderRefreshToken: refresh, server.HeaderDeviceID: "web"},
	})
	require.Equal(t, http.StatusOK, status, body)
	require.NotEqual(t, refresh, body["refreshToken"])

	status, _ = f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthRefresh,
		body:    map[string]string{"refreshToken": refresh},
		headers: map[string]string{server.HeaderDeviceID: "web"},
	})
	require.Equal(t, http.StatusUnauthorized, status, "refresh tokens are single use")
}

func TestLockoutAndUnlock(t *testing.T) {
	f := setupTestFixture(t)

	for range 3 {
		status, _ := f.login(t, "t1", "alice", "WrongPass1", "web")
		require.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := f.login(t, "t1", "alice", userPassword, "web")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "account_locked", body["error"])

	access, _ := f.mustLogin(t, "t1", "ops", "web")
	status, _ = f.do(t, request{method: http.MethodPost, path: "/api/users/alice/unlock", headers: bearer(access, "web")})
	require.Equal(t, http.StatusNoContent, status)

	f.mustLogin(t, "t1", "alice", "web")
}

func TestChangePasswordEndsSessions(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.mustLogin(t, "t1", "alice", "web")

	status, _ := f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthChangePassword,
		body:    map[string]string{"oldPassword": userPassword, "newPassword": "weak"},
		headers: bearer(access, "web"),
	})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do(t, request{
		method:  http.MethodPost,
		path:    server.RouteAuthChangePassword,
		body:    map[string]string{"oldPassword": userPassword, "newPassword": "N3wPassword"},
		headers: bearer(access, "web"),
	})
	require.Equal(t, http.StatusNoContent, status)

	status, _ = f.do(t, request{method: http.MethodGet, path: server.RouteAuthInfo, headers: bearer(access, "web")})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.login(t, "t1", "alice", "N3wPassword", "web")
	require.Equal(t, http.StatusOK, status)
}

func TestLoginLogsAreTenantScoped(t *testing.T) {
	f := setupTestFixture(t)
	f.mustLogin(t, "t2", "alice", "web")
	_, _ = f.login(t, "t1", "alice", "WrongPass1", "web")
	access, _ := f.mustLogin(t, "t1", "ops", "web")

	require.Eventually(t, func() bool {
		status, body := f.do(t, request{method: http.MethodGet, path: server.RouteAPILoginLogs, headers: bearer(access, "web")})
		if status != http.StatusOK {
			return false
		}
		entries, _ := body["entries"].([]any)
		if len(entries) != 2 {
			return false
		}
		for _, e := range entries {
			if e.(map[string]any)["tenantId"] != "t1" {
				return false
			}
		}
		return true
	}, 2*time.Second, 20*time.Millisecond)

	status, _ := f.do(t, request{method: http.MethodGet, path: server.RouteAPILoginLogs + "?limit=0", headers: bearer(access, "web")})
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSystemAdminBootstrap(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.login(t, "system", "admin", adminPassword, "console")
	require.Equal(t, http.StatusOK, status, body)
	perms := body["user"].(map[string]any)["permissions"]
	require.Contains(t, perms, users.PermissionAll)

	env := config.EnvVars{SystemTenantID: "system", SystemAdminUser: "admin"}
	require.NoError(t, server.InitialiseSystem(context.Background(), env, f.store.Tenants(), f.store.Users(), f.store.Settings(), zerolog.Nop()))
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t)

	status, body := f.do(t, request{method: http.MethodGet, path: server.RouteHealth})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	resp, err := f.http.Client().Get(f.http.URL + server.RouteMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecoverMiddleware(t *testing.T) {
	f := setupTestFixture(t)
	h := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, f.srv.RecoverMiddleware)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogCarriesTokenTenant(t *testing.T) {
	var buf bytes.Buffer
	f := setupTestFixture(t, server.WithLogger(zerolog.New(&buf)))

	issued, err := f.tokens.Issue("zed", "d1", users.Principal{Username: "zed", TenantID: "t2", TenantCode: "t2-code"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, server.RouteAuthSessions, nil)
	for k, v := range bearer(issued.AccessToken, "d1") {
		req.Header.Set(k, v)
	}
	req.Header.Set(server.HeaderTenantID, "t1")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var line struct {
		Path   string `json:"path"`
		Tenant string `json:"tenant"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, server.RouteAuthSessions, line.Path)
	require.Equal(t, "t2", line.Tenant)
}

func loginFrom(t *testing.T, f *testFixture, remoteAddr, forwardedFor string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"tenantId": "t1", "username": "alice", "password": userPassword})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, server.RouteAuthLogin, bytes.NewReader(body))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := f.store.Users().GetByUsername(tenants.WithTenant(context.Background(), tenants.Context{TenantID: "t1"}), "alice")
	require.NoError(t, err)
	return u.LastLoginIP
}

func TestForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, "192.0.2.1", loginFrom(t, f, "192.0.2.1:5000", "203.0.113.9"))
}

func TestForwardedForFromTrustedProxy(t *testing.T) {
	f := setupTestFixture(t, server.WithTrustedProxies("192.0.2.0/24", "10.0.0.1"))

	require.Equal(t, "198.51.100.7", loginFrom(t, f, "192.0.2.1:5000", "203.0.113.9, 198.51.100.7, 10.0.0.1"))
	require.Equal(t, "203.0.113.9", loginFrom(t, f, "192.0.2.1:5000", "203.0.113.9"))
	require.Equal(t, "198.51.100.20", loginFrom(t, f, "198.51.100.20:5000", "203.0.113.9"), "untrusted peers cannot forward")
	require.Equal(t, "192.0.2.1", loginFrom(t, f, "192.0.2.1:5000", ""))
}

func TestNewRejectsInvalidTrustedProxy(t *testing.T) {
	f := setupTestFixture(t)
	_, err := server.New(f.dispatcher, f.accounts, f.tokens, server.WithTrustedProxies("not-an-ip"))
	require.Error(t, err)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := server.New(nil, nil, nil)
	require.Error(t, err)
}
