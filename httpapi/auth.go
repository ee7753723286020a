package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xraph/reimburse/types"
)

// Claims are the JWT claims accepted by the API. The subject is the
// caller's account address.
type Claims struct {
	jwt.RegisteredClaims
}

// Auth resolves the calling account of a request.
type Auth struct {
	// Secret signs and verifies HS256 tokens.
	Secret string
	// Issuer is stamped on issued tokens and required on verified ones when set.
	Issuer string
	// TTL is the lifetime of issued tokens.
	TTL time.Duration
	// DevHeader, when set, names a header whose value is trusted as the
	// caller account. Development only.
	DevHeader string
}

var (
	errMissingCredentials = errors.New("authorization header required")
	errBadAuthHeader      = errors.New("invalid authorization header format")
	errInvalidToken       = errors.New("invalid or expired token")
)

// GenerateToken issues a token for account.
func (a Auth) GenerateToken(account types.Account, now time.Time) (string, time.Time, error) {
	if account.IsZero() {
		return "", time.Time{}, fmt.Errorf("token subject: %w", types.ErrInvalidAccount)
	}
	if a.Secret == "" {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}
	expiresAt := now.Add(a.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.String(),
			Issuer:    a.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a bearer token and returns its subject.
func (a Auth) ParseToken(raw string) (types.Account, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(a.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return types.ZeroAccount, errInvalidToken
	}

	account, err := types.ParseAccount(claims.Subject)
	if err != nil || account.IsZero() {
		return types.ZeroAccount, errInvalidToken
	}
	return account, nil
}

// caller extracts the account from the dev header or a bearer token.
func (a Auth) caller(r *http.Request) (types.Account, error) {
	if a.DevHeader != "" {
		if v := r.Header.Get(a.DevHeader); v != "" {
			account, err := types.ParseAccount(v)
			if err != nil || account.IsZero() {
				return types.ZeroAccount, fmt.Errorf("%s: %w", a.DevHeader, types.ErrInvalidAccount)
			}
			return account, nil
		}
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return types.ZeroAccount, errMissingCredentials
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return types.ZeroAccount, errBadAuthHeader
	}
	if a.Secret == "" {
		return types.ZeroAccount, errInvalidToken
	}
	return a.ParseToken(parts[1])
}
