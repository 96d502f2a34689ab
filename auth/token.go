package auth

import (
	"context"
	"fmt"
	"time"

	"smartsolve/domain"
	"smartsolve/errors"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed by the identity service.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates the signature and expiration of a JWT string.
// The roles claim is carried into the identity untouched.
func (v *JWTVerifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(credential, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	}, options...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, jwt.ErrSignatureInvalid)
	}
	userID := domain.UserID(claims.UserID)
	if userID == "" {
		userID = domain.UserID(claims.Subject)
	}
	if err := domain.ValidateUserID(userID); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	return domain.Identity{UserID: userID, Roles: claims.Roles}, nil
}

// Issue signs a token for the user. Tokens are normally issued by the identity
// service, this exists for the operator CLI and tests.
func (v *JWTVerifier) Issue(userID domain.UserID, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: string(userID),
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
