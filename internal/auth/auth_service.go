package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	// TokenIssuer is stamped into every token and required on validation.
	TokenIssuer = "talent-corner"
)

// AuthService 负责机构账号的 JWT 生成与校验。
type AuthService struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// TokenPair 封装访问令牌与刷新令牌。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 携带机构身份，中间件据此构造 Principal。
type TokenClaims struct {
	OrgID              uint   `json:"org_id"`
	Email              string `json:"email"`
	Organization       string `json:"organization"`
	TokenType          string `json:"token_type"`
	MustChangePassword bool   `json:"must_change_password"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated organization described by the claims.
func (c *TokenClaims) Principal() Principal {
	return Principal{
		OrgID:              c.OrgID,
		Email:              c.Email,
		Organization:       c.Organization,
		MustChangePassword: c.MustChangePassword,
	}
}

// NewAuthService 解析 PEM 密钥并构造服务实例。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if len(privateKeyPEM) == 0 {
		return nil, errors.New("private key pem is required")
	}
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.New("rsa public key does not match private key")
	}
	return NewAuthServiceWithKey(privateKey, publicKey, accessTTL, refreshTTL)
}

// NewAuthServiceWithKey builds the service from already parsed keys.
func NewAuthServiceWithKey(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	if privateKey == nil || publicKey == nil {
		return nil, errors.New("rsa key pair is required")
	}
	return &AuthService{
		privateKey:      privateKey,
		publicKey:       publicKey,
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
	}, nil
}

// GenerateTokenPair 创建访问令牌与刷新令牌；只有刷新令牌带 jti，用于吊销。
func (s *AuthService) GenerateTokenPair(p Principal) (TokenPair, error) {
	now := time.Now()

	access := s.claimsFor(p, TokenTypeAccess, now, s.accessTokenTTL)
	refresh := s.claimsFor(p, TokenTypeRefresh, now, s.refreshTokenTTL)
	refresh.MustChangePassword = false
	refresh.ID = uuid.NewString()

	var pair TokenPair
	var err error
	if pair.AccessToken, err = s.signClaims(access); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = s.signClaims(refresh); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *AuthService) claimsFor(p Principal, tokenType string, now time.Time, ttl time.Duration) TokenClaims {
	return TokenClaims{
		OrgID:              p.OrgID,
		Email:              p.Email,
		Organization:       p.Organization,
		TokenType:          tokenType,
		MustChangePassword: p.MustChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatUint(uint64(p.OrgID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// ValidateToken 解析并验证 JWT。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	keyFunc := func(*jwt.Token) (any, error) { return s.publicKey, nil }
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.OrgID == 0 || claims.Organization == "" {
		return nil, errors.New("token carries no organization")
	}

	return claims, nil
}

func (s *AuthService) signClaims(claims TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// AccessTokenTTL 暴露访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

// RefreshTokenTTL 暴露刷新令牌有效期。
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.refreshTokenTTL
}
