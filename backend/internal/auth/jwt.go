package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess = "access"
	TypeAgent  = "agent"
)

var ErrWrongTokenType = errors.New("WRONG_TOKEN_TYPE")

type Claims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"username"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
}

// NewSigner 空 secret 时使用开发用默认值
func NewSigner(secret string) *Signer {
	if secret == "" {
		secret = "dev-secret"
	}
	return &Signer{secret: []byte(secret)}
}

// Sign 签发 typ 类型的 token，返回 token 和过期时间
func (s *Signer) Sign(userID uint64, username, typ string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *Signer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// ParseEditor 只接受可以编辑谱面的 token（用户 access token 或 agent token）
func (s *Signer) ParseEditor(tokenString string) (*Claims, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess && claims.Type != TypeAgent {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
