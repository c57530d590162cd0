// Package identity resolves bearer tokens from the identity provider into
// actors. Tokens are HS256 JWTs carrying the stable user id, email,
// verified flag and the role/plan assignments.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/varsivault/vault-core/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Verified bool   `json:"email_verified,omitempty"`
}

type Resolver struct {
	secret []byte
}

func NewResolver(secret []byte) *Resolver {
	return &Resolver{secret: secret}
}

// ActorFromToken validates the token and builds the acting principal.
// Unknown or missing roles default to Student: staff access is always an
// explicit grant, never a fallback.
func (r *Resolver) ActorFromToken(tokenString string) (domain.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secret, nil
	})
	if err != nil {
		return domain.Actor{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Actor{}, ErrInvalidToken
	}

	role := domain.RoleStudent
	if domain.Role(claims.Role) == domain.RoleStaff {
		role = domain.RoleStaff
	}
	plan := domain.PlanFree
	if domain.Plan(claims.Plan) == domain.PlanPremium {
		plan = domain.PlanPremium
	}

	return domain.Actor{
		ID:       domain.UserID(claims.Subject),
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     role,
		Plan:     plan,
		Verified: claims.Verified,
	}, nil
}

// IssueToken mints a token for an actor. Used by local mode and tests;
// production tokens come from the identity provider itself.
func (r *Resolver) IssueToken(actor domain.Actor, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Name:     actor.Name,
		Email:    actor.Email,
		Role:     string(actor.Role),
		Plan:     string(actor.Plan),
		Verified: actor.Verified,
	})
	return token.SignedString(r.secret)
}
