package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/internal/csrf"
	authhandler "github.com/smallbiznis/webauth/internal/handler/auth"
	"github.com/smallbiznis/webauth/internal/handler/health"
	passwordhandler "github.com/smallbiznis/webauth/internal/handler/password"
	"github.com/smallbiznis/webauth/internal/middleware"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	authsvc "github.com/smallbiznis/webauth/internal/service/auth"
	"github.com/smallbiznis/webauth/pkg/cache"
	"github.com/smallbiznis/webauth/pkg/metrics"
)

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

type fakeAccountsAPI struct {
	signUps int32
}

func (f *fakeAccountsAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/applications":
			if r.URL.Query().Get("client_id") != "web" {
				_, _ = w.Write([]byte(`{"total_data":0,"data":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"total_data":1,"data":[{"application_id":"app-1","display_name":"Smallbiznis Web"}]}`))
		case "/api/v1/password/rules":
			http.NotFound(w, r)
		case "/api/v1/accounts/signInWithPassword":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "Correct1!" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid email or password"}`))
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "_sid", Value: "session-1", Path: "/"})
			_, _ = w.Write([]byte(`{"account_id":"acc-1"}`))
		case "/api/v1/accounts/signup":
			atomic.AddInt32(&f.signUps, 1)
			_, _ = w.Write([]byte(`{"account_id":"acc-2"}`))
		default:
			t.Errorf("unexpected accounts call %s", r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}
}

type testEnv struct {
	engine   *gin.Engine
	accounts *fakeAccountsAPI
}

func newTestEnv(t *testing.T, opts ...func(*RouterConfig)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakeAccountsAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	m := metrics.New("test")
	client, err := accounts.New(accounts.Config{BaseURL: srv.URL + "/api/v1", Timeout: time.Second}, accounts.WithMetrics(m))
	require.NoError(t, err)

	apps, err := appcontext.NewService(client, cache.NewMemoryStore(time.Minute, time.Minute), appcontext.Config{}, m)
	require.NoError(t, err)
	auth := authsvc.NewService(client, apps, "", m)
	csrfManager := csrf.NewManager([]byte("test-secret"), time.Hour)

	cfg := RouterConfig{
		ServiceName:    "webauth-test",
		RateLimit:      100,
		RateBurst:      100,
		APIRateLimit:   100,
		APIRateBurst:   100,
		RequestTimeout: 5 * time.Second,
		CORSConfig:     middleware.DefaultCORSConfig([]string{"https://app.test"}),
		Security:       middleware.DefaultSecurityConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := NewRouter(
		authhandler.NewHandler(apps, auth, csrfManager, false),
		passwordhandler.NewHandler(apps, auth),
		health.NewHandler(client, m.Registry, nil),
		csrfManager,
		m,
		cfg,
	)
	r.Setup()

	return &testEnv{engine: r.Engine(), accounts: fake}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

// formToken loads the page and returns its csrf token.
func (e *testEnv) formToken(t *testing.T, path string) string {
	t.Helper()
	w := e.do(httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code)

	match := csrfField.FindStringSubmatch(w.Body.String())
	require.Len(t, match, 2)
	return match[1]
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	token := e.formToken(t, path)
	form.Set(csrf.FieldName, token)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	return e.do(req)
}

func TestIndexRedirectsToSignIn(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/?client_id=web&state=abc", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signin?client_id=web&state=abc", w.Header().Get("Location"))

	w = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "/signin", w.Header().Get("Location"))
}

func TestSignInPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/signin?client_id=web", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Smallbiznis Web")
	assert.Contains(t, body, `href="/signup?client_id=web"`)
	assert.Contains(t, body, `action="/signin?client_id=web"`)
	assert.Equal(t, 5, strings.Count(body, `class="fail"`))
	assert.Contains(t, body, "At least 8 character")

	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), csrf.CookieName+"=")
}

func TestSignInPage_UnknownApplication(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/signin?client_id=nope", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "application not found")
	assert.Contains(t, w.Body.String(), "password-checklist")
}

func TestSignIn(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/signin?client_id=web&state=xyz", url.Values{
		"email":    {"jane@example.test"},
		"password": {"Correct1!"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/oauth/authorize?client_id=web&state=xyz", w.Header().Get("Location"))

	var relayed bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "_sid" && c.Value == "session-1" {
			relayed = true
		}
	}
	assert.True(t, relayed, "session cookie is relayed")
}

func TestSignIn_RejectedCredentials(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/signin?client_id=web", url.Values{
		"email":    {"jane@example.test"},
		"password": {"wrong"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid email or password")
	assert.Contains(t, w.Body.String(), `value="jane@example.test"`)
	assert.NotContains(t, w.Body.String(), "wrong", "password is never echoed")
}

func TestSignIn_WithoutFormToken(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"email": {"jane@example.test"}, "password": {"Correct1!"}}
	req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	req = httptest.NewRequest(http.MethodPost, "/signin?client_id=web", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	w = env.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "the form has expired")
	assert.Contains(t, w.Body.String(), `href="/signin?client_id=web"`)
}

func TestSignUpPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/signup?client_id=web", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "Sign up with google")
	assert.Contains(t, body, "Sign up with facebook")
	assert.NotContains(t, body, "Sign up with password")
	assert.Contains(t, body, `href="/signin?client_id=web"`)
}

func TestSignUp(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/signup?client_id=web", url.Values{
		"first_name": {"Jane"},
		"last_name":  {"Doe"},
		"email":      {"jane@example.test"},
		"password":   {"Str0ng!pass"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/signin?client_id=web", w.Header().Get("Location"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.accounts.signUps))
}

func TestSignUp_WeakPassword(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/signup?client_id=web", url.Values{
		"first_name": {"Jane"},
		"email":      {"jane@example.test"},
		"password":   {"weakpass"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "password does not satisfy the password policy")
	assert.Equal(t, 2, strings.Count(body, `class="ok"`))
	assert.Equal(t, 3, strings.Count(body, `class="fail"`))
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.accounts.signUps))
}

func TestSignUp_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/signup", url.Values{"password": {"Str0ng!pass"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "first name is required")
	assert.Contains(t, w.Body.String(), "email is required")
}

func TestPasswordAPI(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/password/evaluate", strings.NewReader(`{"password":"abc123"}`))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var evaluated struct {
		Success bool `json:"success"`
		Data    struct {
			Rules []struct {
				Label     string `json:"label"`
				Satisfied bool   `json:"satisfied"`
			} `json:"rules"`
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &evaluated))
	assert.True(t, evaluated.Success)
	assert.False(t, evaluated.Data.Valid)
	require.Len(t, evaluated.Data.Rules, 5)
	assert.True(t, evaluated.Data.Rules[0].Satisfied)
	assert.False(t, evaluated.Data.Rules[1].Satisfied)
	assert.True(t, evaluated.Data.Rules[2].Satisfied)
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/password/rules", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"source":"default"`)
	assert.Contains(t, w.Body.String(), `"label":"Number (i.e. 0-9)"`)

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/password/evaluate", strings.NewReader(`{`))
	bad.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, env.do(bad).Code)
}

// withDefaultRateLimits applies the limits config.Load sets by default.
func withDefaultRateLimits(cfg *RouterConfig) {
	cfg.RateLimit, cfg.RateBurst = 1, 10
	cfg.APIRateLimit, cfg.APIRateBurst = 20, 60
}

func TestPasswordAPI_TypingIsNotRateLimited(t *testing.T) {
	env := newTestEnv(t, withDefaultRateLimits)

	typed := "Abcdefgh12!x"
	for i := 1; i <= len(typed); i++ {
		body, err := json.Marshal(map[string]string{"password": typed[:i]})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/password/evaluate", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(req)
		require.Equal(t, http.StatusOK, w.Code, "keystroke %d (%q)", i, typed[:i])

		if i == len(typed) {
			assert.Contains(t, w.Body.String(), `"valid":true`)
		}
	}
}

func TestSignIn_FormPostsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, withDefaultRateLimits)

	form := url.Values{"email": {"jane@example.test"}, "password": {"Correct1!"}}
	var codes []int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		codes = append(codes, env.do(req).Code)
	}

	assert.Equal(t, http.StatusForbidden, codes[0], "rejected by the form token check")
	assert.Equal(t, http.StatusTooManyRequests, codes[10])
}

func TestPasswordAPI_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/password/evaluate", nil)
	req.Header.Set("Origin", "https://app.test")
	w := env.do(req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.test", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accounts":"closed"`)

	env.do(httptest.NewRequest(http.MethodGet, "/signin", nil))
	w = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",path="/signin",status="200"} 1`)
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/static/checklist.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/password/evaluate")
	assert.Contains(t, w.Body.String(), "unknown()", "failed evaluations clear the previous status")
}
