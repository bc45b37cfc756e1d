package domain

// Credentials is the session state attached to every authenticated request.
// A zero TenantID means no tenant is selected.
type Credentials struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TenantID     int    `json:"tenant_id,omitempty"`
	TenantCode   string `json:"tenant_code,omitempty"`
}

// HasAccessToken reports whether an access token is present.
func (c Credentials) HasAccessToken() bool {
	return c.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is present.
func (c Credentials) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// IsZero reports whether no credential field is set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}
