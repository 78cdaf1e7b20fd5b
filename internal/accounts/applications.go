package accounts

import (
	"context"
	"net/http"
	"net/url"

	"github.com/smallbiznis/webauth/internal/model"
)

// GetApplication fetches the public record of the application with the given
// client id. Secrets are excluded by the accounts API.
func (c *Client) GetApplication(ctx context.Context, clientID string) (*model.Application, error) {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("excludes", "client_id,client_secret")

	resp, err := c.do(ctx, "get_application", http.MethodGet, "/applications", q, nil)
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		if resp.status == http.StatusNotFound {
			return nil, ErrApplicationNotFound
		}
		return nil, &APIError{Status: resp.status, Message: errorMessage(resp.body)}
	}

	var list model.ListApplicationResponse
	if err := resp.decode(&list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, ErrApplicationNotFound
	}
	return &list.Data[0], nil
}
