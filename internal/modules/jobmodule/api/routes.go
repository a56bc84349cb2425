package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the job module API routes.
//
// API Structure:
//
//	/api/v1
//	├── /jobs            - Lane snapshots, pause/resume, removal
//	├── /jobs/history    - Finished jobs
//	├── /events          - Event polling and websocket stream
//	├── /priority        - Process priority preference
//	└── /tools/versions  - ffmpeg and mkvmerge versions
func RegisterRoutes(router *gin.Engine, handler *APIHandler) {
	v1 := router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		jobs.GET("", handler.ListJobs)
		jobs.POST("/pause", handler.PauseJobs)
		jobs.POST("/resume", handler.ResumeJobs)
		jobs.GET("/history", handler.ListHistory)
		jobs.GET("/history/:id", handler.GetHistoryRecord)
		jobs.DELETE("/:id", handler.RemoveJob)

		v1.GET("/events", handler.ListEvents)
		v1.GET("/events/stats", handler.GetEventStats)
		v1.GET("/events/ws", handler.StreamEvents)

		v1.GET("/priority", handler.GetPriority)
		v1.PUT("/priority", handler.SetPriority)

		v1.GET("/tools/versions", handler.GetVersions)
	}
}
