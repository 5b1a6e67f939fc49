package api

import (
	"github.com/fyerfyer/bookmd/api/handler"
	"github.com/fyerfyer/bookmd/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	eventHandler *handler.EventHandler,
	runHandler *handler.RunHandler,
) *gin.Engine {
	// 创建默认的Gin路由引擎
	router := gin.Default()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 创建API分组
	api := router.Group("/api")
	{
		// 存储事件API
		eventGroup := api.Group("/events")
		{
			// 接收对象创建事件 - POST /api/events
			eventGroup.POST("", eventHandler.HandleEvent)
		}

		// 异步任务API
		taskGroup := api.Group("/tasks")
		{
			// 获取任务状态 - GET /api/tasks/:id
			taskGroup.GET("/:id", eventHandler.GetTaskStatus)
		}

		// 运行记录API
		if runHandler != nil {
			runGroup := api.Group("/runs")
			{
				// 获取运行记录列表 - GET /api/runs
				runGroup.GET("", runHandler.ListRuns)

				// 获取单条运行记录 - GET /api/runs/:id
				runGroup.GET("/:id", runHandler.GetRun)
			}
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}
