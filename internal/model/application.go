package model

// Application is the public part of an OAuth client registered with the
// accounts service. Secrets are excluded when it is fetched.
type Application struct {
	ID           string   `json:"application_id"`
	Type         string   `json:"application_type,omitempty"`
	Name         string   `json:"application_name"`
	DisplayName  string   `json:"display_name"`
	LogoURI      string   `json:"application_logo_uri,omitempty"`
	GrantTypes   []string `json:"grant_types,omitempty"`
	RedirectUrls []string `json:"redirect_urls,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Title returns the name shown on the pages.
func (a *Application) Title() string {
	if a == nil {
		return ""
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

// ListApplicationResponse is the accounts service list envelope.
type ListApplicationResponse struct {
	Data      []Application `json:"data"`
	TotalData int64         `json:"total_data"`
}
