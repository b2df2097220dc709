package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/recall/internal/api/handlers"
	"github.com/your-org/recall/internal/api/ws"
	"github.com/your-org/recall/internal/auth"
	"github.com/your-org/recall/internal/service"
)

type RouterConfig struct {
	APIKey    string
	Service   *service.Service
	Hub       *ws.Hub
	Checks    map[string]handlers.Check
	UploadDir string
	// MaxUploadBytes caps video and image request bodies. Zero means no cap.
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	upload := limitBody(cfg.MaxUploadBytes)

	peopleH := handlers.NewPeopleHandler(cfg.Service)
	v1.GET("/people", peopleH.List)
	v1.GET("/people/:name/face", peopleH.Face)
	v1.POST("/people/rename", peopleH.Rename)

	convH := handlers.NewConversationHandler(cfg.Service)
	v1.GET("/conversations/:name", convH.Get)
	v1.POST("/conversations/:name/profile", convH.Enrich)

	assistantH := handlers.NewAssistantHandler(cfg.Service)
	v1.POST("/assistant", assistantH.Ask)

	highlightH := handlers.NewHighlightHandler(cfg.Service)
	v1.GET("/highlights", highlightH.List)
	v1.PATCH("/highlights/:id", highlightH.SetStatus)

	videoH := handlers.NewVideoHandler(cfg.Service, cfg.UploadDir)
	v1.POST("/process", upload, videoH.Process)
	v1.POST("/videos", upload, videoH.Submit)

	faceH := handlers.NewFaceHandler(cfg.Service)
	v1.POST("/faces/identify", upload, faceH.Identify)
	v1.POST("/faces/enroll", upload, faceH.Enroll)

	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
