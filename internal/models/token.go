package models

// Keys under which the credential store keeps tokens
const (
	KeyAccessToken  = "access-token"
	KeyRefreshToken = "refresh-token"
)

// Token pair issued by the identity service on login or registration
// Both values are opaque for the client
type TokenPair struct {
	Access  string `json:"access_token" validate:"required"`
	Refresh string `json:"refresh_token" validate:"required"`
}

// Fresh access token returned by the refresh endpoint
type AccessToken struct {
	Access string `json:"access_token" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh_token"`
}
