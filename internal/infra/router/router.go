package router

import (
	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/internal/app/middleware"
	bundle_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/bundle"
	file_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/file"
	pool_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/pool"
	upload_handler "github.com/qingyun-c/qingyun-drive/pkg/handler/upload"
)

// Router 封装了应用的所有路由和其依赖的处理器。
type Router struct {
	uploadHandler *upload_handler.UploadHandler
	fileHandler   *file_handler.FileHandler
	bundleHandler *bundle_handler.BundleHandler
	poolHandler   *pool_handler.PoolHandler
}

// NewRouter 是 Router 的构造函数
func NewRouter(
	uploadHandler *upload_handler.UploadHandler,
	fileHandler *file_handler.FileHandler,
	bundleHandler *bundle_handler.BundleHandler,
	poolHandler *pool_handler.PoolHandler,
) *Router {
	return &Router{
		uploadHandler: uploadHandler,
		fileHandler:   fileHandler,
		bundleHandler: bundleHandler,
		poolHandler:   poolHandler,
	}
}

// Setup 在给定的 gin 引擎上注册全部路由。
func (r *Router) Setup(engine *gin.Engine) {
	api := engine.Group("/api")
	{
		uploads := api.Group("/upload/tasks")
		{
			uploads.POST("", middleware.CreateRateLimit(), r.uploadHandler.CreateTask)
			uploads.GET("/:taskId", r.uploadHandler.GetStatus)
			uploads.PUT("/:taskId/chunks/:index", r.uploadHandler.UploadChunk)
			uploads.POST("/:taskId/pause", r.uploadHandler.Pause)
			uploads.POST("/:taskId/resume", r.uploadHandler.Resume)
			uploads.POST("/:taskId/complete", r.uploadHandler.Complete)
			uploads.DELETE("/:taskId", r.uploadHandler.Cancel)
		}

		files := api.Group("/files")
		{
			files.GET("/:id", r.fileHandler.GetInfo)
			files.GET("/:id/url", r.fileHandler.GetDownloadURL)
			files.GET("/:id/raw", r.fileHandler.ServeRaw)
			files.DELETE("/:id", r.fileHandler.Delete)
		}

		// 本地池签名直链，签名由 LocalProvider 签发
		api.GET("/download/local/:id", r.fileHandler.ServeLocal)

		pools := api.Group("/pools")
		{
			pools.GET("", r.poolHandler.List)
			pools.GET("/:id", r.poolHandler.Get)
			pools.POST("", r.poolHandler.Create)
			pools.PUT("/:id", r.poolHandler.Update)
		}

		bundles := api.Group("/bundles")
		{
			bundles.POST("", middleware.CreateRateLimit(), r.bundleHandler.Create)
			bundles.GET("/:slug", r.bundleHandler.GetBySlug)
			bundles.PUT("/:id/files", r.bundleHandler.UpdateFiles)
			bundles.DELETE("/:id", r.bundleHandler.Delete)
		}
	}
}
