package http

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/service"
)

const walletTag = "wallet"

// Services are the application services the router exposes
type Services struct {
	Auth   *service.AuthService
	Claims *service.ClaimService
	Users  *service.UserService
	// Health is optional; it backs GET /healthz.
	Health func(ctx context.Context) error
}

var registerOnce sync.Once

// registerValidators installs the custom binding tags on gin's validator.
// The engine is process-global, so this runs once.
func registerValidators() {
	registerOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation(walletTag, func(fl validator.FieldLevel) bool {
				return core.ValidateWalletAddress(fl.Field().String()) == nil
			})
		}
	})
}

// SetupRouter sets up the Gin router
func SetupRouter(s Services, log logrus.FieldLogger) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	handlers := NewHandlers(s, log)

	router.GET("/healthz", handlers.Health)
	router.GET("/quests", handlers.Quests)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
	}

	router.GET("/claim/eligibility", handlers.Eligibility)

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(s.Auth))
	{
		api.GET("/me", handlers.Me)
		api.POST("/claim", handlers.Claim)
		api.POST("/quests/:questId/complete", handlers.CompleteQuest)
	}

	return router
}
