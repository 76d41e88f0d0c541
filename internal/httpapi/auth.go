package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyUserID      = "user_id"
	contextKeyDisplayName = "display_name"
)

var errInvalidToken = errors.New("invalid token")

// SessionClaims carries the authenticated identity per request.
type SessionClaims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// GenerateToken mints a signed session token for a user.
func (cfg *Config) GenerateToken(userID string, displayName string, now time.Time) (string, error) {
	claims := SessionClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.SessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.SessionSigningKey))
}

func (cfg *Config) parseToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(cfg.SessionSigningKey), nil
	}, jwt.WithIssuer(cfg.SessionIssuer))
	if err != nil {
		return nil, errInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}

// authRequired validates the bearer token and stores the identity in the
// request context.
func authRequired(cfg *Config) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if header == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid authorization format"))
			return
		}
		claims, err := cfg.parseToken(parts[1])
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid or expired token"))
			return
		}
		ctx.Set(contextKeyUserID, claims.Subject)
		ctx.Set(contextKeyDisplayName, claims.DisplayName)
		ctx.Next()
	}
}

func sessionUserID(ctx *gin.Context) string {
	value, _ := ctx.Get(contextKeyUserID)
	userID, _ := value.(string)
	return userID
}
