// Package http registers the service's routes: the staff admin API, the
// booth API, the SSE watch feeds, the signaling websocket, and ops
// endpoints.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/wartelsys/wartel/internal/config"
	"github.com/wartelsys/wartel/internal/feed"
	adminhandlers "github.com/wartelsys/wartel/internal/http/api/admin/handlers"
	boothhandlers "github.com/wartelsys/wartel/internal/http/api/booth/handlers"
	"github.com/wartelsys/wartel/internal/ledger"
	"github.com/wartelsys/wartel/internal/relay"
	"github.com/wartelsys/wartel/internal/session"
	"github.com/wartelsys/wartel/internal/store"
)

// Deps bundles everything the routes need.
type Deps struct {
	DB           *gorm.DB
	Config       *config.Config
	Ledger       *ledger.Ledger
	Store        *store.Store
	Orchestrator *session.Orchestrator
	Hub          *relay.Hub
	Bus          *feed.Bus
}

// RegisterRoutes wires all endpoints onto the engine.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	healthHandler := adminhandlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Session id is the room capability; the relay itself carries no auth.
	r.GET("/v0/signaling", gin.WrapH(deps.Hub))

	authed := r.Group("/v0")
	authed.Use(ActorAuthMiddleware(deps.Config.Auth.JWTSecret))

	admin := authed.Group("/admin")
	admin.Use(RequireStaff())

	voucherHandler := adminhandlers.NewVoucherHandler(deps.Ledger, deps.Store)
	admin.POST("/vouchers", voucherHandler.Create)
	admin.GET("/vouchers", voucherHandler.List)
	admin.PUT("/vouchers/:code", voucherHandler.Adjust)
	admin.DELETE("/vouchers/:code", voucherHandler.Delete)

	sessionAdminHandler := adminhandlers.NewSessionAdminHandler(deps.Store, deps.Orchestrator)
	admin.GET("/sessions", sessionAdminHandler.List)
	admin.POST("/sessions/:id/terminate", sessionAdminHandler.Terminate)

	logsHandler := adminhandlers.NewActivityLogHandler(deps.Store)
	admin.POST("/logs", logsHandler.Create)
	admin.GET("/logs", logsHandler.List)

	booth := authed.Group("/booth")

	sessionHandler := boothhandlers.NewSessionHandler(deps.Orchestrator, deps.Store)
	booth.POST("/sessions", sessionHandler.Start)
	booth.POST("/sessions/:id/terminate", sessionHandler.Terminate)
	booth.GET("/sessions/:id", sessionHandler.Get)

	voucherPreviewHandler := boothhandlers.NewVoucherPreviewHandler(deps.Ledger)
	booth.GET("/vouchers/:code", voucherPreviewHandler.Get)

	receiverHandler := boothhandlers.NewReceiverHandler(deps.Store)
	booth.POST("/receivers", receiverHandler.Register)
	booth.GET("/receivers", receiverHandler.List)

	watch := authed.Group("/watch")
	watch.GET("/sessions", WatchSessionsHandler(deps.Bus, deps.Store))
	watch.GET("/vouchers", WatchVouchersHandler(deps.Bus, deps.Ledger))
}
