// Package password serves the password policy API used by the live checklist.
package password

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/webauth/internal/model"
	"github.com/smallbiznis/webauth/internal/service/appcontext"
	apperrors "github.com/smallbiznis/webauth/pkg/errors"
	"github.com/smallbiznis/webauth/pkg/httputil"
	"github.com/smallbiznis/webauth/pkg/password"
)

type PolicySource interface {
	Policy(ctx context.Context) (*password.Policy, appcontext.RuleSource, error)
}

type Evaluator interface {
	EvaluatePassword(ctx context.Context, pw string) (*password.Result, error)
}

type Handler struct {
	policies  PolicySource
	evaluator Evaluator
}

func NewHandler(policies PolicySource, evaluator Evaluator) *Handler {
	return &Handler{policies: policies, evaluator: evaluator}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/password")
	{
		g.GET("/rules", h.ListRules)
		g.POST("/evaluate", h.Evaluate)
	}
}

type rulesResponse struct {
	Rules  []password.Rule       `json:"rules"`
	Source appcontext.RuleSource `json:"source"`
}

// ListRules returns the rules of the current policy in order.
func (h *Handler) ListRules(c *gin.Context) {
	policy, source, err := h.policies.Policy(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, rulesResponse{Rules: policy.Rules(), Source: source})
}

// Evaluate reports which rules the submitted password satisfies. It is
// called on every change of the password field.
func (h *Handler) Evaluate(c *gin.Context) {
	var req model.EvaluatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	result, err := h.evaluator.EvaluatePassword(c.Request.Context(), req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}
