package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rolloutgate/internal/dto/req"
	"rolloutgate/internal/dto/resp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "rolloutgate:auth:session:"
	tokenIssuer      = "rolloutgate-auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
)

// SigningKey is replaced from configuration at startup.
var SigningKey = []byte("rolloutgate-dev-signing-key")

// OperatorClaims carries the operator identity inside access and refresh
// tokens; the control-plane middleware turns it back into OperatorInfo.
type OperatorClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates control-plane operators and keeps refresh-token
// sessions in redis as an allow-list.
type AuthService struct {
	redis           *redis.Client
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewAuthService(rdb *redis.Client, accessTokenTTL, refreshTokenTTL time.Duration) *AuthService {
	return &AuthService{
		redis:           rdb,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// Login authenticates an operator and returns a token pair.
func (s *AuthService) Login(ctx context.Context, r req.LoginRequest) (*resp.TokenResponse, error) {
	// TODO: back operator accounts with the users table once the host
	// application exposes an account lookup.
	if r.Username != "admin" || r.Password != "admin123" {
		return nil, ErrInvalidCredentials
	}

	userID := "1001"
	role := "admin"

	tokens, err := s.generateTokens(ctx, userID, r.Username, role)
	if err != nil {
		return nil, err
	}
	tokens.User = resp.OperatorInfo{
		ID:       userID,
		Username: r.Username,
		Role:     role,
	}
	return tokens, nil
}

// Refresh rotates the token pair using a valid refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*resp.TokenResponse, error) {
	token, err := jwt.ParseWithClaims(refreshToken, &OperatorClaims{}, func(t *jwt.Token) (any, error) {
		return SigningKey, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	key := sessionKeyPrefix + claims.UserID
	stored, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, err
	}
	if stored != refreshToken {
		return nil, ErrTokenInvalid
	}

	return s.generateTokens(ctx, claims.UserID, claims.Username, claims.Role)
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, sessionKeyPrefix+userID).Err()
}

func (s *AuthService) generateTokens(ctx context.Context, userID, username, role string) (*resp.TokenResponse, error) {
	now := time.Now()

	atClaims := OperatorClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, atClaims).SignedString(SigningKey)
	if err != nil {
		return nil, err
	}

	rtClaims := OperatorClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			ID:        uuid.New().String(),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, rtClaims).SignedString(SigningKey)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s%s", sessionKeyPrefix, userID)
	if err := s.redis.Set(ctx, key, refreshToken, s.refreshTokenTTL).Err(); err != nil {
		return nil, err
	}

	return &resp.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}
