// Package setup reports missing configuration and probes upstream models.
package setup

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Result is the body of GET /api/check-setup.
type Result struct {
	IsSetupComplete bool     `json:"isSetupComplete"`
	MissingKeys     []string `json:"missingKeys"`
}

// Check lists the required variables that are unset or blank.
func Check(lookup func(string) (string, bool), required []string) Result {
	missing := make([]string, 0)
	for _, key := range required {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	return Result{IsSetupComplete: len(missing) == 0, MissingKeys: missing}
}

// RequireSetup blocks the wrapped routes until every required variable is set.
func RequireSetup(lookup func(string) (string, bool), required []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := Check(lookup, required)
		if !res.IsSetupComplete {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":       "setup incomplete",
				"missingKeys": res.MissingKeys,
			})
			return
		}
		c.Next()
	}
}
