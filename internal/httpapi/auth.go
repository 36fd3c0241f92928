package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/keyshop/pkg/shop"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
)

const (
	principalContextKey     = "keyshop_principal"
	sessionClaimsContextKey = "auth_claims"
	bearerPrefix            = "Bearer "
)

var errMissingToken = errors.New("missing bearer token")

// Claims is the JWT payload of API tokens. The subject carries the account id.
type Claims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to a request. Roles are never taken from
// credentials; they are read from the stored account.
type Principal struct {
	AccountID   shop.AccountID
	DisplayName string
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
}

// NewTokenIssuer validates the signing key.
func NewTokenIssuer(signingKey string, issuer string) (*TokenIssuer, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	return &TokenIssuer{signingKey: []byte(signingKey), issuer: issuer}, nil
}

// Issue signs a token for the account valid for ttl.
func (issuer *TokenIssuer) Issue(accountID shop.AccountID, displayName string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    issuer.issuer,
			IssuedAt:  jwt.NewNumericDate(now.UTC()),
			ExpiresAt: jwt.NewNumericDate(now.UTC().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.signingKey)
}

// Verify parses a signed token into a Principal.
func (issuer *TokenIssuer) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return issuer.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, err
	}
	accountID, err := shop.ParseAccountID(claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	return Principal{AccountID: accountID, DisplayName: claims.DisplayName}, nil
}

// sessionMiddleware validates a tauth session cookie when the request carries one. A nil
// validator disables cookie sessions.
func sessionMiddleware(validator *sessionvalidator.Validator, cookieName string) gin.HandlerFunc {
	if validator == nil {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	validate := validator.GinMiddleware(sessionClaimsContextKey)
	return func(ctx *gin.Context) {
		if _, err := ctx.Cookie(cookieName); err != nil {
			ctx.Next()
			return
		}
		validate(ctx)
	}
}

// authenticate attaches the Principal from validated session claims, or from the bearer
// token when no session was presented.
func authenticate(tokens *TokenIssuer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if claims := getSessionClaims(ctx); claims != nil {
			accountID, err := shop.ParseAccountID(claims.GetUserID())
			if err != nil {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "session user is not an account id"))
				return
			}
			ctx.Set(principalContextKey, Principal{AccountID: accountID, DisplayName: claims.GetUserDisplayName()})
			ctx.Next()
			return
		}
		raw, err := bearerToken(ctx.GetHeader("Authorization"))
		if err == nil {
			var principal Principal
			principal, err = tokens.Verify(raw)
			if err == nil {
				ctx.Set(principalContextKey, principal)
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "invalid or missing token"))
	}
}

// requireAdmin gates on the stored role and ban flag of the caller's account.
func (handler *httpHandler) requireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		principal, ok := getPrincipal(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
			return
		}
		account, err := handler.service.GetAccount(ctx.Request.Context(), principal.AccountID)
		switch {
		case errors.Is(err, shop.ErrAccountNotFound):
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(errorCodeForbidden, "admin role required"))
			return
		case err != nil:
			handler.respondError(ctx, err)
			ctx.Abort()
			return
		case account.Banned:
			handler.respondError(ctx, shop.ErrBanned)
			ctx.Abort()
			return
		case account.Role != shop.RoleAdmin:
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse(errorCodeForbidden, "admin role required"))
			return
		}
		ctx.Next()
	}
}

func bearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

func getPrincipal(ctx *gin.Context) (Principal, bool) {
	value, ok := ctx.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func getSessionClaims(ctx *gin.Context) *sessionvalidator.Claims {
	value, ok := ctx.Get(sessionClaimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*sessionvalidator.Claims)
	return claims
}
