package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"torrent-catalog/config"
)

// AuthMiddleware enforces HTTP basic auth when auth is enabled.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	challenge := `Basic realm="` + strings.ReplaceAll(cfg.Auth.Realm, `"`, "") + `"`

	return func(c *gin.Context) {
		if !cfg.Auth.Enabled {
			c.Next()
			return
		}

		username, password, ok := parseBasicAuth(c.GetHeader("Authorization"))
		if !ok || !credentialsMatch(cfg, username, password) {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

func parseBasicAuth(header string) (username, password string, ok bool) {
	scheme, encoded, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", false
	}

	return strings.Cut(string(payload), ":")
}

func credentialsMatch(cfg *config.Config, username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Auth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Auth.Password)) == 1
	return userOK && passOK
}
