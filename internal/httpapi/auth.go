package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"gitlab.com/timkado/api/daisi-wa-support-console/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-support-console/internal/tenant"
)

const claimsKey = "claims"

// Claims is the agent token issued by the console's identity service.
type Claims struct {
	OrganizationID string `json:"org"`
	Role           string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 agent tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier. An empty issuer accepts any issuer.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses raw and returns its claims. The token must name both a
// subject and an organization.
func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: token verification is not configured", apperrors.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.OrganizationID == "" {
		return nil, fmt.Errorf("%w: token lacks subject or organization", apperrors.ErrUnauthorized)
	}
	return claims, nil
}

// Sign issues a token for claims. Used by tooling and tests; the console
// itself only verifies.
func (v *TokenVerifier) Sign(claims *Claims) (string, error) {
	if v.issuer != "" && claims.Issuer == "" {
		claims.Issuer = v.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AuthMiddleware requires a valid bearer token and scopes the request context
// to the token's organization and user. Browsers cannot set headers on a
// websocket handshake, so the token is also accepted as ?token=.
func AuthMiddleware(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			abortWithError(c, fmt.Errorf("%w: missing token", apperrors.ErrUnauthorized))
			return
		}

		claims, err := v.Verify(raw)
		if err != nil {
			abortWithError(c, err)
			return
		}

		ctx := tenant.WithOrganizationID(c.Request.Context(), claims.OrganizationID)
		ctx = tenant.WithUserID(ctx, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// claimsFrom returns the claims stored by AuthMiddleware.
func claimsFrom(c *gin.Context) (*Claims, error) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, errors.New("no claims on request")
	}
	claims, ok := v.(*Claims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

func abortWithError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	body := gin.H{"error": apperrors.Code(err), "message": err.Error()}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		// internal details stay in the logs
		body["message"] = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, body)
}
