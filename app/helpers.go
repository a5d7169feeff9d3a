package app

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/jdiaz1993/quickcalories/app/ledger"
	"github.com/jdiaz1993/quickcalories/auth"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// converts string to int safely
func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive: %d", n)
	}
	return n, nil
}

// GetWorkerCount returns configured when positive, then the WORKERS env var,
// then the number of CPUs.
func GetWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	n := runtime.NumCPU()
	if v := os.Getenv("WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n
}

// parseDate reads YYYY-MM-DD as local midnight in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), loc)
}

// parseBound accepts either a calendar date or an RFC3339 timestamp. Empty
// input is an open bound.
func parseBound(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := parseDate(s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (s *Server) deviceID(c *gin.Context) string {
	return ledger.NormalizeDeviceID(c.GetHeader("X-Device-Id"), s.cfg.Usage.DeviceIDMaxLen)
}

func userID(c *gin.Context) string {
	return auth.UserID(c.Request.Context())
}

// appURL is the frontend base URL without a trailing slash.
func (s *Server) appURL() string {
	return strings.TrimRight(s.cfg.Stripe.AppURL, "/")
}
