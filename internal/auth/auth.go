package auth

import (
	"errors"
	"time"

	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

// TokenGeneratorAPI creates and validates signed tokens.
type TokenGeneratorAPI interface {
	GenerateAccessToken(u *user.User) (string, error)
	GenerateRefreshToken(u *user.User) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims carries the principal. Role and company are re-read from the
// database on every request, the copies here are informational.
type Claims struct {
	UserID    int64         `json:"user_id"`
	Email     string        `json:"email"`
	Role      coreuser.Role `json:"role"`
	CompanyID int64         `json:"company_id"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrUserInactive        = errors.New("user is inactive")
	ErrPasswordMismatch    = errors.New("current password does not match")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// LoginResponse is returned by login and signup.
type LoginResponse struct {
	AccessToken   string            `json:"access_token"`
	RefreshToken  string            `json:"refresh_token"`
	ResetRequired bool              `json:"reset_required"`
	User          *user.User        `json:"user"`
	Company       *coreuser.Company `json:"company"`
}
