package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/metrics"
	"github.com/techstore/storefront/internal/service/auth"
	"github.com/techstore/storefront/internal/service/catalog"
	"github.com/techstore/storefront/internal/service/checkout"
	"github.com/techstore/storefront/internal/service/lifecycle"
	"github.com/techstore/storefront/internal/service/users"
)

// Services — прикладные сервисы, которые обслуживает роутер.
type Services struct {
	Auth      *auth.Service
	Users     *users.Service
	Catalog   *catalog.Service
	Checkout  *checkout.Assembler
	Lifecycle *lifecycle.Service
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт логгер транспорта.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает HTTP-метрики.
func WithMetrics(m *metrics.StorefrontMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithIdempotency включает обработку Idempotency-Key для создания заказов.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(s *Server) {
		s.idempotency = repo
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithProduction скрывает детали внутренних ошибок от клиента.
func WithProduction(production bool) Option {
	return func(s *Server) {
		s.production = production
	}
}

// WithRateLimit задаёт общий лимит запросов на IP. rps <= 0 отключает лимит.
// Регистрация и вход получают отдельный, в десять раз более строгий лимит.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newRateLimiter(rps, burst)
		s.authLimiter = newRateLimiter(rps/10, max(burst/10, 1))
	}
}

// WithClock подменяет часы.
func WithClock(clock domain.Clock) Option {
	return func(s *Server) {
		s.now = clock
	}
}

// Server — HTTP API магазина.
type Server struct {
	services       Services
	idempotency    domain.IdempotencyRepository
	idempotencyTTL time.Duration
	metrics        *metrics.StorefrontMetrics
	logger         *log.Entry
	production     bool
	limiter        *rateLimiter
	authLimiter    *rateLimiter
	now            domain.Clock
}

// NewServer создаёт HTTP API поверх сервисов.
func NewServer(services Services, opts ...Option) *Server {
	s := &Server{
		services:       services,
		idempotencyTTL: domain.DefaultIdempotencyTTL,
		logger:         log.WithField("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router собирает gin.Engine со всеми маршрутами /api/v1.
func (s *Server) Router() *gin.Engine {
	registerValidators()

	r := gin.New()
	r.HandleMethodNotAllowed = false
	r.Use(
		s.recovery(),
		requestID(),
		tracing(),
		s.observe(),
		requestLogger(s.logger),
		s.limiter.middleware("Demasiadas peticiones, intenta de nuevo más tarde"),
	)

	r.GET("/api/health", func(c *gin.Context) {
		success(c, http.StatusOK, "TechStore API funcionando", gin.H{"timestamp": s.now.Now()})
	})

	v1 := r.Group("/api/v1")
	s.registerAuthRoutes(v1.Group("/auth"))
	s.registerProductRoutes(v1.Group("/products"))
	s.registerOrderRoutes(v1.Group("/orders"))
	s.registerUserRoutes(v1.Group("/users"))

	r.NoRoute(func(c *gin.Context) {
		failure(c, http.StatusNotFound, fmt.Sprintf("Ruta %s no encontrada", c.Request.URL.Path), nil)
	})
	return r
}

func (s *Server) registerAuthRoutes(g *gin.RouterGroup) {
	limited := s.authLimiter.middleware("Demasiados intentos, espera 15 minutos")
	g.POST("/register", limited, s.register)
	g.POST("/login", limited, s.login)
	g.POST("/refresh", s.refresh)
	g.POST("/logout", s.protect(), s.logout)
	g.GET("/me", s.protect(), s.me)
}

func (s *Server) registerProductRoutes(g *gin.RouterGroup) {
	g.GET("", s.listProducts)
	g.GET("/categories/stats", s.categoryStats)
	g.GET("/slug/:slug", s.getProductBySlug)
	g.GET("/:id", s.getProduct)

	admin := []gin.HandlerFunc{s.protect(), authorize(domain.RoleAdmin)}
	g.POST("", append(admin, s.createProduct)...)
	g.PUT("/:id", append(admin, s.updateProduct)...)
	g.DELETE("/:id", append(admin, s.deleteProduct)...)
}

func (s *Server) registerOrderRoutes(g *gin.RouterGroup) {
	g.Use(s.protect())
	g.POST("", s.placeOrder)
	g.GET("/me", s.myOrders)
	g.GET("", authorize(domain.RoleAdmin), s.allOrders)
	g.GET("/:id", s.getOrder)
	g.PATCH("/:id/status", authorize(domain.RoleAdmin), s.updateOrderStatus)
	g.PATCH("/:id/pay", s.payOrder)
}

func (s *Server) registerUserRoutes(g *gin.RouterGroup) {
	g.Use(s.protect())
	g.GET("/profile", s.profile)
	g.PUT("/profile", s.updateProfile)
	g.PUT("/password", s.changePassword)
	g.GET("", authorize(domain.RoleAdmin), s.listUsers)
	g.PATCH("/:id/toggle", authorize(domain.RoleAdmin), s.toggleUser)
}
