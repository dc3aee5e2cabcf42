package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const keyPlayer = "player_id"

var errMissingToken = errors.New("server: missing token")

// IssueToken signs a token whose subject is the player id.
func IssueToken(secret string, playerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func playerFromToken(secret string, raw string) (string, error) {
	if raw == "" {
		return "", errMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		return "", err
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	if subject == "" {
		return "", errMissingToken
	}
	return subject, nil
}

// requestToken reads a bearer header, falling back to the token query
// parameter browsers use for websockets.
func requestToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, err := playerFromToken(s.cfg.JWTSecret, requestToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(keyPlayer, playerID)
		c.Next()
	}
}
