package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/internal/model"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/metrics"
	"github.com/smallbiznis/webauth/pkg/password"
	"github.com/smallbiznis/webauth/pkg/validator"
)

type fakeAccounts struct {
	signIn     func(model.SignInRequest) (*accounts.AuthResult, error)
	signUp     func(model.SignUpRequest) (*accounts.AuthResult, error)
	lastSignUp *model.SignUpRequest
}

func (f *fakeAccounts) SignInWithPassword(_ context.Context, req model.SignInRequest) (*accounts.AuthResult, error) {
	return f.signIn(req)
}

func (f *fakeAccounts) SignUp(_ context.Context, req model.SignUpRequest) (*accounts.AuthResult, error) {
	f.lastSignUp = &req
	return f.signUp(req)
}

type staticPolicy struct {
	policy *password.Policy
	err    error
}

func (p staticPolicy) Policy(context.Context) (*password.Policy, appcontext.RuleSource, error) {
	return p.policy, appcontext.SourceDefault, p.err
}

func defaultPolicy() staticPolicy {
	return staticPolicy{policy: password.MustCompile(password.DefaultRules())}
}

func TestSignIn(t *testing.T) {
	api := &fakeAccounts{signIn: func(req model.SignInRequest) (*accounts.AuthResult, error) {
		assert.Equal(t, "jane@example.test", req.Email)
		return &accounts.AuthResult{Status: http.StatusOK, SetCookies: []string{"_sid=abc; Path=/"}}, nil
	}}
	svc := NewService(api, defaultPolicy(), "", nil)

	out, err := svc.SignIn(context.Background(), model.SignInRequest{Email: "jane@example.test", Password: "whatever"}, "client_id=web&state=xyz")
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize?client_id=web&state=xyz", out.RedirectURL)
	assert.Equal(t, []string{"_sid=abc; Path=/"}, out.SetCookies)
}

func TestSignIn_DoesNotCheckPolicy(t *testing.T) {
	api := &fakeAccounts{signIn: func(model.SignInRequest) (*accounts.AuthResult, error) {
		return &accounts.AuthResult{Status: http.StatusOK}, nil
	}}
	svc := NewService(api, defaultPolicy(), "https://accounts.test/oauth/authorize", nil)

	out, err := svc.SignIn(context.Background(), model.SignInRequest{Email: "jane@example.test", Password: "weak"}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.test/oauth/authorize", out.RedirectURL)
}

func TestSignIn_Errors(t *testing.T) {
	tests := []struct {
		name    string
		form    model.SignInRequest
		err     error
		status  int
		message string
	}{
		{
			name:   "missing email",
			form:   model.SignInRequest{Password: "x"},
			status: http.StatusBadRequest,
		},
		{
			name:    "rejected credentials",
			form:    model.SignInRequest{Email: "a@b.test", Password: "x"},
			err:     &accounts.APIError{Status: http.StatusUnauthorized, Message: "wrong password"},
			status:  http.StatusUnauthorized,
			message: "wrong password",
		},
		{
			name:    "rejected without message",
			form:    model.SignInRequest{Email: "a@b.test", Password: "x"},
			err:     &accounts.APIError{Status: http.StatusBadRequest},
			status:  http.StatusUnauthorized,
			message: model.ErrInvalidCredentials.Error(),
		},
		{
			name:   "accounts down",
			form:   model.SignInRequest{Email: "a@b.test", Password: "x"},
			err:    fmt.Errorf("%w: %w", accounts.ErrUnavailable, &accounts.APIError{Status: http.StatusBadGateway}),
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "unexpected",
			form:   model.SignInRequest{Email: "a@b.test", Password: "x"},
			err:    errors.New("decode failure"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAccounts{signIn: func(model.SignInRequest) (*accounts.AuthResult, error) {
				return nil, tt.err
			}}
			svc := NewService(api, defaultPolicy(), "", nil)

			_, err := svc.SignIn(context.Background(), tt.form, "")
			require.Error(t, err)
			assert.Equal(t, tt.status, apperrors.StatusCode(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, apperrors.PublicMessage(err))
			}
		})
	}
}

func TestSignIn_ValidationFields(t *testing.T) {
	svc := NewService(&fakeAccounts{}, defaultPolicy(), "", nil)

	_, err := svc.SignIn(context.Background(), model.SignInRequest{Email: "not-an-email"}, "")
	var verr *validator.ValidationError
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "email must be a valid email", fields["email"])
	assert.Equal(t, "password is required", fields["password"])
}

func validSignUp() model.SignUpRequest {
	return model.SignUpRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.test",
		Password:  "Str0ng!pass",
	}
}

func TestSignUp(t *testing.T) {
	api := &fakeAccounts{signUp: func(model.SignUpRequest) (*accounts.AuthResult, error) {
		return &accounts.AuthResult{Status: http.StatusOK}, nil
	}}
	m := metrics.New("test")
	svc := NewService(api, defaultPolicy(), "", m)

	out, err := svc.SignUp(context.Background(), validSignUp(), "web", "client_id=web&redirect_uri=https%3A%2F%2Fapp.test")
	require.NoError(t, err)
	assert.Equal(t, "/signin?client_id=web&redirect_uri=https%3A%2F%2Fapp.test", out.RedirectURL)

	require.NotNil(t, api.lastSignUp)
	assert.Equal(t, model.ProviderPassword, api.lastSignUp.Provider)
	assert.Equal(t, "web", api.lastSignUp.ClientID)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PasswordEvaluations.WithLabelValues("satisfied")))
}

func TestSignUp_WeakPasswordNeverReachesAccounts(t *testing.T) {
	api := &fakeAccounts{signUp: func(model.SignUpRequest) (*accounts.AuthResult, error) {
		t.Fatal("accounts API must not be called")
		return nil, nil
	}}
	m := metrics.New("test")
	svc := NewService(api, defaultPolicy(), "", m)

	form := validSignUp()
	form.Password = "weakpass"

	_, err := svc.SignUp(context.Background(), form, "", "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
	assert.ErrorIs(t, err, model.ErrWeakPassword)

	var weak *WeakPasswordError
	require.True(t, errors.As(err, &weak))
	assert.False(t, weak.Result.AllSatisfied)
	assert.Equal(t, []string{"Upper case letters (A-Z)", "Number (i.e. 0-9)", "Special character (@$!%*?&)"}, weak.Result.Unsatisfied())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PasswordEvaluations.WithLabelValues("unsatisfied")))
}

func TestSignUp_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.SignUpRequest)
		policy  staticPolicy
		err     error
		status  int
		message string
	}{
		{
			name:   "missing first name",
			mutate: func(f *model.SignUpRequest) { f.FirstName = "" },
			policy: defaultPolicy(),
			status: http.StatusBadRequest,
		},
		{
			name:    "social provider",
			mutate:  func(f *model.SignUpRequest) { f.Provider = model.ProviderGoogle },
			policy:  defaultPolicy(),
			status:  http.StatusBadRequest,
			message: model.ErrUnsupportedProvider.Error(),
		},
		{
			name:   "unknown provider",
			mutate: func(f *model.SignUpRequest) { f.Provider = "myspace" },
			policy: defaultPolicy(),
			status: http.StatusBadRequest,
		},
		{
			name:    "email taken",
			policy:  defaultPolicy(),
			err:     &accounts.APIError{Status: http.StatusOK, Message: "email already registered"},
			status:  http.StatusBadRequest,
			message: "email already registered",
		},
		{
			name:   "accounts down",
			policy: defaultPolicy(),
			err:    fmt.Errorf("%w: connection refused", accounts.ErrUnavailable),
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "policy unavailable",
			policy: staticPolicy{err: apperrors.Configuration("invalid password rule", password.ErrInvalidPattern)},
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAccounts{signUp: func(model.SignUpRequest) (*accounts.AuthResult, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &accounts.AuthResult{Status: http.StatusOK}, nil
			}}
			svc := NewService(api, tt.policy, "", nil)

			form := validSignUp()
			if tt.mutate != nil {
				tt.mutate(&form)
			}

			_, err := svc.SignUp(context.Background(), form, "web", "")
			require.Error(t, err)
			assert.Equal(t, tt.status, apperrors.StatusCode(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, apperrors.PublicMessage(err))
			}
		})
	}
}

func TestEvaluatePassword(t *testing.T) {
	m := metrics.New("test")
	svc := NewService(&fakeAccounts{}, defaultPolicy(), "", m)

	weak, err := svc.EvaluatePassword(context.Background(), "abc")
	require.NoError(t, err)
	strong, err := svc.EvaluatePassword(context.Background(), "Abcdef1!")
	require.NoError(t, err)

	assert.False(t, weak.AllSatisfied)
	assert.True(t, strong.AllSatisfied)
	assert.Len(t, strong.Rules, 5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PasswordEvaluations.WithLabelValues("satisfied")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PasswordEvaluations.WithLabelValues("unsatisfied")))
}

func TestEvaluatePassword_EmptyPolicy(t *testing.T) {
	svc := NewService(&fakeAccounts{}, staticPolicy{policy: password.MustCompile(nil)}, "", nil)

	result, err := svc.EvaluatePassword(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, result.AllSatisfied)
	assert.Empty(t, result.Rules)
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "/signin", WithQuery("/signin", ""))
	assert.Equal(t, "/signin?a=1", WithQuery("/signin", "a=1"))
	assert.Equal(t, "/oauth/authorize?x=y&a=1", WithQuery("/oauth/authorize?x=y", "a=1"))
}
