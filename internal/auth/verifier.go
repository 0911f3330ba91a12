package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/dialhaus/realtime-gateway/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	TenantId string `json:"tenantId"`
}

// Identity is what a verified token proves about the caller.
type Identity struct {
	UserId   string
	TenantId string
}

// AdminTenant marks a platform-operator token that passes every tenant
// access check.
const AdminTenant = "*"

type Verifier struct {
	secret     []byte
	serviceKey []byte
	jwtParser  *jwt.Parser
}

func NewVerifier(secret string, serviceKey string) *Verifier {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience("realtime"),
	)

	return &Verifier{
		secret:     []byte(secret),
		serviceKey: []byte(serviceKey),
		jwtParser:  jwtParser,
	}
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return v.secret, nil
}

func (v *Verifier) VerifyUserToken(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing token"))
	}

	claims := Claims{}

	_, err := v.jwtParser.ParseWithClaims(tokenString, &claims, v.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid subject claim"))
	}

	if claims.TenantId == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("tenantId claim cannot be empty"))
	}

	return &Identity{
		UserId:   subject,
		TenantId: claims.TenantId,
	}, nil
}

// VerifyServiceKey checks a sibling service's shared key in constant time.
func (v *Verifier) VerifyServiceKey(key string) bool {
	if len(v.serviceKey) == 0 {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(key), v.serviceKey) == 1
}

func (v *Verifier) CheckTenantAccess(identity *Identity, tenantId string) bool {
	if identity == nil || tenantId == "" {
		return false
	}

	if identity.TenantId == AdminTenant {
		return true
	}

	return identity.TenantId == tenantId
}
