package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/zipplatformofficial/zip-platform/pkg/auth"
	"github.com/zipplatformofficial/zip-platform/pkg/config"
	"github.com/zipplatformofficial/zip-platform/pkg/db"
	"github.com/zipplatformofficial/zip-platform/pkg/mq"
	"github.com/zipplatformofficial/zip-platform/pkg/obs"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/registry"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/resolver"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/service"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/store"
	httpt "github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/transport/http"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load()
	cfg := must(config.Load())

	shutdown := obs.InitTracer("tracking-service")
	defer func() { _ = shutdown(context.Background()) }()

	// booking directory reads the platform's bookings tables
	gdb := db.Open(cfg.PGBookingDSN)
	dir := resolver.NewGormDirectory(gdb)
	must(0, dir.Migrate())

	// tracking.* events for the notification pipeline
	pub := must(mq.NewPublisher(cfg.RabbitURL, cfg.TrackingExchange))
	defer pub.Close()

	st := store.NewMemoryStore(cfg.HistoryLimit)
	reg := registry.New(cfg.WatcherQueue)
	svc := service.NewTrackingSvc(st, reg, dir, pub, cfg.DefaultSpeedKmh)

	h := httpt.NewTrackingHandler(svc)
	r := gin.Default()

	v1 := r.Group("/v1/tracking")
	v1.Use(httpt.JWTAuth())
	{
		v1.POST("/technicians/location", httpt.RequireRole(auth.RoleTechnician), h.ReportTechnicianLocation)
		v1.POST("/vehicles/location", httpt.RequireRole(auth.RoleAdmin, auth.RoleVendor), h.ReportVehicleLocation)

		v1.GET("/ws/:booking_id", h.Watch)
		v1.GET("/sessions/active", httpt.RequireRole(auth.RoleAdmin, auth.RoleOpsManager), h.ListActiveSessions)
		v1.GET("/:booking_id", h.GetTrackingInfo)
		v1.GET("/:booking_id/history", h.GetHistory)
		v1.POST("/:booking_id/start", h.StartTracking)
		v1.POST("/:booking_id/stop", h.StopTracking)
	}

	log.Println("[tracking] http on", cfg.TrackingHTTPAddr)
	log.Fatal(r.Run(cfg.TrackingHTTPAddr))
}
