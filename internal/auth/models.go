// Package auth provides anonymous rider identities for M-Radl.
package auth

import "time"

// User is an anonymous rider. The id is the reporter recorded on every
// report the rider submits.
type User struct {
	ID        string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenResponse is returned by sign-in and refresh. The refresh token is
// single use; refreshing rotates it.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user"`
}

// RefreshTokenRequest carries a refresh token for rotation or revocation.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required,max=256"`
}
