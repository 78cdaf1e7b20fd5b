// Package auth serves the sign-in and sign-up pages.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/webauth/internal/csrf"
	"github.com/smallbiznis/webauth/internal/model"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	authsvc "github.com/smallbiznis/webauth/internal/service/auth"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/password"
	"github.com/smallbiznis/webauth/pkg/validator"
)

const (
	signInPath = "/signin"
	signUpPath = "/signup"
)

type AppLoader interface {
	Load(ctx context.Context, clientID string) (*appcontext.AppContext, error)
}

type AuthService interface {
	SignIn(ctx context.Context, form model.SignInRequest, rawQuery string) (*authsvc.Outcome, error)
	SignUp(ctx context.Context, form model.SignUpRequest, clientID, rawQuery string) (*authsvc.Outcome, error)
	EvaluatePassword(ctx context.Context, pw string) (*password.Result, error)
}

type Handler struct {
	apps         AppLoader
	svc          AuthService
	csrf         *csrf.Manager
	cookieSecure bool
}

func NewHandler(apps AppLoader, svc AuthService, csrfManager *csrf.Manager, cookieSecure bool) *Handler {
	return &Handler{
		apps:         apps,
		svc:          svc,
		csrf:         csrfManager,
		cookieSecure: cookieSecure,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Index)
	r.GET(signInPath, h.SignInPage)
	r.POST(signInPath, h.SignIn)
	r.GET(signUpPath, h.SignUpPage)
	r.POST(signUpPath, h.SignUp)
}

// page is the view model shared by the templates.
type page struct {
	Title       string
	AppTitle    string
	Action      string
	AltURL      string
	CSRFToken   string
	Error       string
	FieldErrors map[string]string
	Checklist   *password.Result
	Providers   []model.Provider

	Email     string
	FirstName string
	LastName  string
}

// Index sends the browser to the sign in page, keeping the query.
func (h *Handler) Index(c *gin.Context) {
	c.Redirect(http.StatusFound, authsvc.WithQuery(signInPath, c.Request.URL.RawQuery))
}

func (h *Handler) SignInPage(c *gin.Context) {
	p, ok := h.newPage(c, "Login", signInPath, signUpPath)
	if !ok {
		return
	}
	h.render(c, http.StatusOK, "signin.html", p)
}

func (h *Handler) SignIn(c *gin.Context) {
	var form model.SignInRequest
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(err)
	}

	out, err := h.svc.SignIn(c.Request.Context(), form, c.Request.URL.RawQuery)
	if err == nil {
		h.redirect(c, out)
		return
	}

	p, ok := h.newPage(c, "Login", signInPath, signUpPath)
	if !ok {
		return
	}
	p.Email = form.Email
	h.evaluate(c, p, form.Password)
	h.fail(c, p, err, "signin.html")
}

func (h *Handler) SignUpPage(c *gin.Context) {
	p, ok := h.newPage(c, "Sign Up", signUpPath, signInPath)
	if !ok {
		return
	}
	h.render(c, http.StatusOK, "signup.html", p)
}

func (h *Handler) SignUp(c *gin.Context) {
	var form model.SignUpRequest
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(err)
	}

	out, err := h.svc.SignUp(c.Request.Context(), form, c.Query("client_id"), c.Request.URL.RawQuery)
	if err == nil {
		h.redirect(c, out)
		return
	}

	p, ok := h.newPage(c, "Sign Up", signUpPath, signInPath)
	if !ok {
		return
	}
	p.Email = form.Email
	p.FirstName = form.FirstName
	p.LastName = form.LastName

	var weak *authsvc.WeakPasswordError
	if errors.As(err, &weak) {
		p.Checklist = weak.Result
	} else {
		h.evaluate(c, p, form.Password)
	}
	h.fail(c, p, err, "signup.html")
}

// newPage loads the application context. When the policy cannot be loaded
// the error page is rendered and ok is false.
func (h *Handler) newPage(c *gin.Context, title, self, alt string) (*page, bool) {
	q := c.Request.URL.RawQuery
	p := &page{
		Title:       title,
		Action:      authsvc.WithQuery(self, q),
		AltURL:      authsvc.WithQuery(alt, q),
		FieldErrors: map[string]string{},
		Providers:   model.SocialProviders(),
	}

	ac, err := h.apps.Load(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		_ = c.Error(err)
		p.Title = "Something went wrong"
		p.AltURL = authsvc.WithQuery(self, q)
		p.Error = apperrors.PublicMessage(err)
		h.render(c, apperrors.StatusCode(err), "error.html", p)
		return nil, false
	}

	p.AppTitle = ac.Application.Title()
	if ac.ApplicationErr != nil {
		_ = c.Error(ac.ApplicationErr)
		p.Error = apperrors.PublicMessage(ac.ApplicationErr)
	}

	result, err := ac.Policy.Evaluate("")
	if err != nil {
		_ = c.Error(err)
	}
	p.Checklist = result
	return p, true
}

func (h *Handler) evaluate(c *gin.Context, p *page, pw string) {
	result, err := h.svc.EvaluatePassword(c.Request.Context(), pw)
	if err != nil {
		_ = c.Error(err)
		return
	}
	p.Checklist = result
}

func (h *Handler) fail(c *gin.Context, p *page, err error, tmpl string) {
	_ = c.Error(err)
	p.Error = apperrors.PublicMessage(err)

	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			p.FieldErrors[f.Field] = f.Message
		}
	}
	h.render(c, apperrors.StatusCode(err), tmpl, p)
}

func (h *Handler) redirect(c *gin.Context, out *authsvc.Outcome) {
	for _, sc := range out.SetCookies {
		c.Writer.Header().Add("Set-Cookie", sc)
	}
	c.Redirect(http.StatusSeeOther, out.RedirectURL)
}

// render issues a fresh form token, sets it as a cookie and renders tmpl.
func (h *Handler) render(c *gin.Context, status int, tmpl string, p *page) {
	token, err := h.csrf.Issue(time.Now())
	if err != nil {
		_ = c.Error(apperrors.Internal(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	p.CSRFToken = token

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.csrf.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	c.HTML(status, tmpl, p)
}
