package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/webauth/internal/csrf"
	"github.com/smallbiznis/webauth/internal/middleware"
	"github.com/smallbiznis/webauth/internal/web"
	"github.com/smallbiznis/webauth/pkg/httputil"
	"github.com/smallbiznis/webauth/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(gin.IRouter)
}

type PageHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine  *gin.Engine
	config  RouterConfig
	metrics *metrics.Metrics
	csrf    *csrf.Manager

	pages    PageHandler
	password Handler
	health   Handler
}

type RouterConfig struct {
	ServiceName string
	RateLimit   rate.Limit
	RateBurst   int
	// APIRateLimit applies to /api/v1 instead of RateLimit.
	APIRateLimit   rate.Limit
	APIRateBurst   int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
	Security       middleware.SecurityConfig
}

func NewRouter(
	pages PageHandler,
	passwordH Handler,
	healthH Handler,
	csrfManager *csrf.Manager,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		config:   config,
		metrics:  m,
		csrf:     csrfManager,
		pages:    pages,
		password: passwordH,
		health:   healthH,
	}

	engine.SetHTMLTemplate(web.MustTemplates())

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		middleware.Metrics(m),
		otelgin.Middleware(config.ServiceName),
		middleware.SecurityHeaders(config.Security),
	)

	return r
}

func (r *Router) Setup() {
	r.health.RegisterRoutes(r.engine)

	static := r.engine.Group("/static", middleware.Cache(middleware.StaticCacheConfig()))
	static.StaticFS("/", web.Static())

	sizeLimit := middleware.DefaultSizeLimitConfig()
	if r.config.MaxBodyBytes > 0 {
		sizeLimit.MaxBodySize = r.config.MaxBodyBytes
	}
	timeout := middleware.DefaultTimeoutConfig()
	if r.config.RequestTimeout > 0 {
		timeout.Duration = r.config.RequestTimeout
	}

	common := []gin.HandlerFunc{
		middleware.Cache(middleware.NoStoreConfig()),
		middleware.SizeLimit(sizeLimit),
		middleware.Timeout(timeout),
	}

	pages := r.engine.Group("", httputil.HTMLErrors())
	pages.Use(common...)
	if r.config.RateLimit > 0 {
		pages.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		}).RateLimit())
	}
	pages.Use(middleware.CSRF(r.csrf))
	r.pages.RegisterRoutes(pages)

	api := r.engine.Group("/api/v1", middleware.CORS(r.config.CORSConfig))
	// preflight requests are answered by the CORS middleware
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(204) })
	api.Use(common...)
	if r.config.APIRateLimit > 0 {
		api.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.APIRateLimit,
			Burst: r.config.APIRateBurst,
		}).RateLimit())
	}
	r.password.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
