package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	coreuser "github.com/frahmantamala/expense-approvals/internal/core/user"
	"github.com/frahmantamala/expense-approvals/internal/user"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetCompany(ctx context.Context, companyID int64) (*coreuser.Company, error)
	UpdatePassword(ctx context.Context, id int64, hash string, resetRequired bool) error
	// CreateCompanyWithAdmin stores both rows atomically and fills in their ids.
	CreateCompanyWithAdmin(ctx context.Context, company *coreuser.Company, admin *user.User) error
}

// PasswordIssuer mails a fresh temporary password.
type PasswordIssuer interface {
	ForgotPassword(ctx context.Context, email string) error
}

type CurrencyChecker interface {
	Known(code string) bool
}

// Service is the main auth service with dependencies
type Service struct {
	repo           RepositoryAPI
	tokenGenerator TokenGeneratorAPI
	passwords      PasswordIssuer
	currencies     CurrencyChecker
	bcryptCost     int
	logger         *slog.Logger
}

func NewService(repo RepositoryAPI, tokenGen TokenGeneratorAPI, passwords PasswordIssuer, currencies CurrencyChecker, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:           repo,
		tokenGenerator: tokenGen,
		passwords:      passwords,
		currencies:     currencies,
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * 7 * time.Hour
	}
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, dto.Email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}

	resp, err := s.loginResponse(ctx, u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", u.ID, "company_id", u.CompanyID)
	return resp, nil
}

// Signup creates a company and its admin, then logs the admin in.
func (s *Service) Signup(ctx context.Context, dto SignupDTO) (*LoginResponse, error) {
	if s.currencies != nil && !s.currencies.Known(dto.Currency) {
		return nil, ErrUnsupportedCurrency
	}

	existing, err := s.repo.GetByEmail(ctx, dto.Email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, user.ErrEmailTaken
	}

	hash, err := user.HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	company := &coreuser.Company{Name: dto.CompanyName, Country: dto.Country, Currency: dto.Currency}
	admin := &user.User{
		Email:        dto.Email,
		Name:         dto.Name,
		Role:         coreuser.RoleAdmin,
		IsActive:     true,
		PasswordHash: hash,
	}
	if err := s.repo.CreateCompanyWithAdmin(ctx, company, admin); err != nil {
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	s.logger.Info("company signed up", "company_id", company.ID, "admin_id", admin.ID, "currency", company.Currency)

	tokens, err := s.issueTokens(admin)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         admin,
		Company:      company,
	}, nil
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issueTokens(u)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateAccessToken(tokenString)
}

// Authorize resolves token claims to the current member record.
func (s *Service) Authorize(ctx context.Context, claims *Claims) (*coreuser.Member, error) {
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return u.Member(), nil
}

func (s *Service) ForgotPassword(ctx context.Context, dto ForgotPasswordDTO) error {
	return s.passwords.ForgotPassword(ctx, dto.Email)
}

// ChangePassword replaces the password and clears reset_required.
func (s *Service) ChangePassword(ctx context.Context, userID int64, dto ChangePasswordDTO) error {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.CurrentPassword)); err != nil {
		return ErrPasswordMismatch
	}
	hash, err := user.HashPassword(dto.NewPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash, false); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	s.logger.Info("password changed", "user_id", u.ID)
	return nil
}

func (s *Service) activeUser(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	return u, nil
}

func (s *Service) loginResponse(ctx context.Context, u *user.User) (*LoginResponse, error) {
	company, err := s.repo.GetCompany(ctx, u.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		ResetRequired: u.ResetRequired,
		User:          u,
		Company:       company,
	}, nil
}

func (s *Service) issueTokens(u *user.User) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(u)
	if err != nil {
		return AuthTokens{}, err
	}
	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(u)
	if err != nil {
		return AuthTokens{}, err
	}
	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(u *user.User) (string, error) {
	return j.sign(u, j.AccessTokenSecret, j.AccessTokenTTL)
}

// GenerateRefreshToken creates a new refresh token
func (j *JWTTokenGenerator) GenerateRefreshToken(u *user.User) (string, error) {
	return j.sign(u, j.RefreshTokenSecret, j.RefreshTokenTTL)
}

func (j *JWTTokenGenerator) ValidateAccessToken(tokenString string) (*Claims, error) {
	return j.parse(tokenString, j.AccessTokenSecret)
}

func (j *JWTTokenGenerator) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return j.parse(tokenString, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) sign(u *user.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CompanyID: u.CompanyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(u.ID, 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (j *JWTTokenGenerator) parse(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID > 0 {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
