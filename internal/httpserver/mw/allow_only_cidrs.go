package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/utils"
)

// AllowOnlyCIDRS restricts operational endpoints (health, infra) to the
// given IPs/CIDRs. An empty list disables filtering.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		log.Debug("AllowOnlyCIDRS: empty matcher, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	log.Debugf("AllowOnlyCIDRS: initialized with %d rules, trustProxy=%v", len(allowed), trustProxy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Debug("request rejected by cidr filter",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				writeStatus(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
