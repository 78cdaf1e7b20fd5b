package accounts

import (
	"context"
	"fmt"
	"net/http"

	"github.com/smallbiznis/webauth/pkg/password"
)

type remoteRule struct {
	Label       string `json:"label"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Pattern     string `json:"pattern"`
}

func (r remoteRule) rule() password.Rule {
	label := r.Label
	if label == "" {
		label = r.DisplayName
	}
	if label == "" {
		label = r.Name
	}
	return password.Rule{Label: label, Pattern: r.Pattern}
}

// ListPasswordRules fetches the password rules configured in the accounts
// service. The patterns are returned uncompiled.
func (c *Client) ListPasswordRules(ctx context.Context) ([]password.Rule, error) {
	resp, err := c.do(ctx, "list_password_rules", http.MethodGet, "/password/rules", nil, nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNotImplemented:
		return nil, ErrRulesNotServed
	default:
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body)}
	}

	var body struct {
		Data []remoteRule `json:"data"`
	}
	if err := resp.decode(&body); err != nil {
		return nil, err
	}

	rules := make([]password.Rule, 0, len(body.Data))
	for i, r := range body.Data {
		if r.Pattern == "" {
			return nil, fmt.Errorf("password rule %d has no pattern", i)
		}
		rules = append(rules, r.rule())
	}
	return rules, nil
}
