package accounts

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/smallbiznis/webauth/internal/model"
)

// AuthResult is a successful sign in or sign up. SetCookies holds the
// Set-Cookie headers of the accounts response, to be relayed to the browser.
type AuthResult struct {
	Status     int
	SetCookies []string
	Data       json.RawMessage
}

func newAuthResult(resp *response) *AuthResult {
	return &AuthResult{
		Status:     resp.status,
		SetCookies: resp.header.Values("Set-Cookie"),
		Data:       json.RawMessage(resp.body),
	}
}

type signInBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword authenticates an account. Any status other than 200 is
// a failed sign in.
func (c *Client) SignInWithPassword(ctx context.Context, req model.SignInRequest) (*AuthResult, error) {
	resp, err := c.do(ctx, "sign_in", http.MethodPost, "/accounts/signInWithPassword", nil, signInBody{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return nil, err
	}
	if resp.status > http.StatusOK {
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body)}
	}
	return newAuthResult(resp), nil
}

type signUpBody struct {
	ClientID  string `json:"client_id"`
	Provider  string `json:"provider"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// SignUp registers an account. A response carrying an error field is a
// failed sign up whatever its status.
func (c *Client) SignUp(ctx context.Context, req model.SignUpRequest) (*AuthResult, error) {
	resp, err := c.do(ctx, "sign_up", http.MethodPost, "/accounts/signup", nil, signUpBody{
		ClientID:  req.ClientID,
		Provider:  req.Provider.String(),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return nil, err
	}
	if msg := errorMessage(resp.body); hasErrorField(resp.body) || resp.status >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.status, Message: msg}
	}
	return newAuthResult(resp), nil
}

func hasErrorField(body []byte) bool {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	switch string(envelope.Error) {
	case "", "null", `""`, "false":
		return false
	}
	return true
}
