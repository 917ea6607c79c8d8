package service

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/model"
)

// AuthService validates inbound bearer tokens and resolves them to a
// principal. Token issuance belongs to the identity service; this side only
// verifies.
type AuthService struct {
	secret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

type principalClaims struct {
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies a bearer token, returning the principal
// it identifies.
func (s *AuthService) ValidateToken(tokenString string) (*model.User, error) {
	claims := &principalClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errs.Forbidden("invalid or expired token")
	}
	if claims.Subject == "" {
		return nil, errs.Forbidden("token has no subject")
	}

	return &model.User{
		ID:        claims.Subject,
		FullName:  claims.FullName,
		Role:      model.Role(claims.Role),
		AvatarURL: claims.AvatarURL,
	}, nil
}
