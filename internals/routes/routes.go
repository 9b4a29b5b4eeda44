package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mental-health-navigator/high-tea/internals/config"
	"github.com/mental-health-navigator/high-tea/internals/controllers"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/middleware"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

// Dependencies are the collaborators the router hands to its controllers.
type Dependencies struct {
	Config       *config.Config
	Log          logging.Logger
	Provider     identity.SessionClient
	TokenManager *utils.TokenManager
	Navigator    controllers.Navigator
	Ingestion    controllers.Ingestion
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Tracing(deps.Log))

	// Instantiate the "Class"
	verifiedMiddleware := middleware.NewRequireVerifiedMiddleware(deps.TokenManager, deps.TokenManager.Session.Name)
	navigatorCtrl := controllers.NewNavigatorController(deps.Navigator, deps.Log)
	otpCtrl := controllers.NewOTPController(deps.Provider, deps.TokenManager, deps.Log)
	ingestCtrl := controllers.NewIngestController(deps.Ingestion, deps.Log)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "active",
			"environment": deps.Config.Env,
			"message":     deps.Config.AppName + " API is running",
		})
	})

	api := r.Group("/api")
	{
		api.GET("/health", navigatorCtrl.Health)
		api.POST("/chat", navigatorCtrl.Chat)
		api.POST("/search", navigatorCtrl.Search)

		otp := api.Group("/otp")
		{
			otp.POST("/send", otpCtrl.Send)
			otp.POST("/verify", otpCtrl.Verify)

			// Session-scoped endpoints
			verified := otp.Group("/")
			verified.Use(verifiedMiddleware.RequireVerified)
			{
				verified.GET("/session", otpCtrl.Session)
				verified.POST("/logout", otpCtrl.Logout)
			}
		}

		protected := api.Group("/protected")
		protected.Use(verifiedMiddleware.RequireVerified)
		{
			protected.POST("/ingest", ingestCtrl.Ingest)
			protected.POST("/ingest/text", ingestCtrl.IngestText)
		}
	}
	return r
}
