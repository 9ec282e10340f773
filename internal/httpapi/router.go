package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattendance/internal/auth"
	"qrattendance/internal/httpmiddleware"
)

// RouterConfig holds what the router needs beyond the handler.
type RouterConfig struct {
	SigningKey      string
	Issuer          string
	RateLimitPerMin int
	Metrics         http.Handler
}

// NewRouter wires the API routes.
func NewRouter(h *Handler, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", auth.NonceHeader},
		AllowCredentials: false,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())

	metrics := rc.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metrics))
	r.GET("/healthz", h.Healthz)

	limiter := httpmiddleware.NewSimpleTokenBucket(rc.RateLimitPerMin, rc.RateLimitPerMin)
	v1 := r.Group("/v1", limiter.GinMiddleware(operatorOrIP(rc.SigningKey, rc.Issuer)))
	v1.POST("/session", h.Session)

	scans := v1.Group("", auth.RequireNonce(rc.SigningKey, rc.Issuer))
	scans.POST("/mark-attendance", h.MarkAttendance)

	reports := scans.Group("/attendance", auth.RequireAdmin())
	reports.GET("", h.ListAttendance)
	reports.GET("/summary", h.Summary)

	return r
}

// operatorOrIP charges requests carrying a valid nonce to its operator, so that
// several scanners behind one school NAT do not share a bucket. Everything
// else, including forged or expired nonces, is charged to the client IP.
func operatorOrIP(signingKey, issuer string) httpmiddleware.KeyFunc {
	return func(c *gin.Context) string {
		if token := auth.TokenFrom(c); token != "" {
			if claims, err := auth.Parse(token, signingKey, issuer); err == nil && claims.Subject != "" {
				return "operator:" + claims.Subject
			}
		}
		return "ip:" + c.ClientIP()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
