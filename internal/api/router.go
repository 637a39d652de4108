package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PlateWatch/PlateWatch/internal/common/config"
	"github.com/PlateWatch/PlateWatch/internal/common/logger"
	"github.com/PlateWatch/PlateWatch/internal/common/middleware"
)

// NewRouter 组装gin路由与中间件
func NewRouter(cfg *config.Config, h *Handler, tracer opentracing.Tracer, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLog(log))
	r.Use(Trace(tracer))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	r.MaxMultipartMemory = 32 << 20

	// 两个上传接口共享一个令牌桶
	uploadLimiter := middleware.NewTokenBucket(cfg.Upload.RateBurst, cfg.Upload.RatePerSecond)

	r.POST("/submit_violation",
		BodyLimit(cfg.Upload.MaxFileSize), RateLimit(uploadLimiter), h.SubmitViolation)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/vehicles", h.ListVehicles)
		apiGroup.GET("/violations", h.ListViolations)
		apiGroup.GET("/vehicle/:plate", h.VehicleDetail)
		apiGroup.DELETE("/vehicle/:plate", h.DeleteVehicle)
		apiGroup.PUT("/violation/:id", h.UpdateViolation)
		apiGroup.DELETE("/violation/:id", h.DeleteViolation)
		apiGroup.POST("/compress-preview",
			BodyLimit(cfg.Upload.MaxFileSize), RateLimit(uploadLimiter), h.CompressPreview)
		apiGroup.POST("/image/rotate/:id", h.RotateImage)
		apiGroup.GET("/image/info/:id", h.ImageInfo)
		apiGroup.GET("/image/download/:id", h.DownloadImage)
	}

	r.GET("/uploads/:filename", h.ServeUpload)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
