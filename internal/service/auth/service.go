package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smallbiznis/webauth/internal/accounts"
	"github.com/smallbiznis/webauth/internal/model"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/metrics"
	"github.com/smallbiznis/webauth/pkg/password"
	"github.com/smallbiznis/webauth/pkg/validator"
)

const (
	DefaultAuthorizeURL = "/oauth/authorize"
	SignInPath          = "/signin"
)

type AccountsAPI interface {
	SignInWithPassword(ctx context.Context, req model.SignInRequest) (*accounts.AuthResult, error)
	SignUp(ctx context.Context, req model.SignUpRequest) (*accounts.AuthResult, error)
}

type PolicySource interface {
	Policy(ctx context.Context) (*password.Policy, appcontext.RuleSource, error)
}

// Outcome tells the page where to send the browser next and which cookies of
// the accounts API to relay.
type Outcome struct {
	RedirectURL string
	SetCookies  []string
}

// WeakPasswordError carries the evaluation that rejected a sign-up password.
type WeakPasswordError struct {
	Result *password.Result
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("%v: %s", model.ErrWeakPassword, strings.Join(e.Result.Unsatisfied(), ", "))
}

func (e *WeakPasswordError) Unwrap() error {
	return model.ErrWeakPassword
}

type Service struct {
	api          AccountsAPI
	policies     PolicySource
	validator    *validator.Validator
	metrics      *metrics.Metrics
	authorizeURL string
}

func NewService(api AccountsAPI, policies PolicySource, authorizeURL string, m *metrics.Metrics) *Service {
	if authorizeURL == "" {
		authorizeURL = DefaultAuthorizeURL
	}
	return &Service{
		api:          api,
		policies:     policies,
		validator:    validator.New(),
		metrics:      m,
		authorizeURL: authorizeURL,
	}
}

// SignIn authenticates with email and password. On success the browser goes
// to the authorize endpoint with the incoming query.
func (s *Service) SignIn(ctx context.Context, form model.SignInRequest, rawQuery string) (*Outcome, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, apperrors.BadRequest("invalid sign in form", err)
	}

	res, err := s.api.SignInWithPassword(ctx, form)
	if err != nil {
		var apiErr *accounts.APIError
		if errors.As(err, &apiErr) && !errors.Is(err, accounts.ErrUnavailable) {
			msg := apiErr.Message
			if msg == "" {
				msg = model.ErrInvalidCredentials.Error()
			}
			return nil, apperrors.Unauthorized(msg, err)
		}
		return nil, accountsError(err)
	}

	return &Outcome{
		RedirectURL: WithQuery(s.authorizeURL, rawQuery),
		SetCookies:  res.SetCookies,
	}, nil
}

// SignUp registers an account after checking the password against the
// policy. clientID comes from the page query and wins over the form. On
// success the browser goes back to the sign in page.
func (s *Service) SignUp(ctx context.Context, form model.SignUpRequest, clientID, rawQuery string) (*Outcome, error) {
	if form.Provider == "" {
		form.Provider = model.ProviderPassword
	}
	if clientID != "" {
		form.ClientID = clientID
	}

	if err := s.validator.Struct(form); err != nil {
		return nil, apperrors.BadRequest("invalid sign up form", err)
	}
	if form.Provider != model.ProviderPassword {
		return nil, apperrors.BadRequest(model.ErrUnsupportedProvider.Error(), model.ErrUnsupportedProvider)
	}

	result, err := s.EvaluatePassword(ctx, form.Password)
	if err != nil {
		return nil, err
	}
	if !result.AllSatisfied {
		weak := &WeakPasswordError{Result: result}
		return nil, apperrors.BadRequest(model.ErrWeakPassword.Error(), weak)
	}

	res, err := s.api.SignUp(ctx, form)
	if err != nil {
		var apiErr *accounts.APIError
		if errors.As(err, &apiErr) && !errors.Is(err, accounts.ErrUnavailable) {
			msg := apiErr.Message
			if msg == "" {
				msg = "sign up failed"
			}
			return nil, apperrors.BadRequest(msg, err)
		}
		return nil, accountsError(err)
	}

	return &Outcome{
		RedirectURL: WithQuery(SignInPath, rawQuery),
		SetCookies:  res.SetCookies,
	}, nil
}

// EvaluatePassword evaluates pw against the current policy. It is called on
// every change of the candidate password and never cached.
func (s *Service) EvaluatePassword(ctx context.Context, pw string) (*password.Result, error) {
	policy, _, err := s.policies.Policy(ctx)
	if err != nil {
		s.countEvaluation("error")
		return nil, err
	}

	result, err := policy.Evaluate(pw)
	if err != nil {
		s.countEvaluation("error")
		log.Error().Err(err).Msg("password evaluation failed")
		return nil, apperrors.Configuration("password rule evaluation failed", err)
	}

	if result.AllSatisfied {
		s.countEvaluation("satisfied")
	} else {
		s.countEvaluation("unsatisfied")
	}
	return result, nil
}

func (s *Service) countEvaluation(outcome string) {
	if s.metrics != nil {
		s.metrics.PasswordEvaluations.WithLabelValues(outcome).Inc()
	}
}

func accountsError(err error) error {
	if errors.Is(err, accounts.ErrUnavailable) {
		return apperrors.Unavailable("accounts", err)
	}
	return apperrors.Internal(err)
}

// WithQuery appends a raw query to target. An empty query adds nothing.
func WithQuery(target, rawQuery string) string {
	if rawQuery == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + rawQuery
	}
	return target + "?" + rawQuery
}
