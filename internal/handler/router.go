package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/coscribe/internal/middleware"
)

type RouterDeps struct {
	Auth      *AuthHandler
	Documents *DocumentHandler
	Streams   *StreamHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/auth/register", deps.Auth.Register)
	api.POST("/auth/login", deps.Auth.Login)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.POST("/documents", deps.Documents.Save)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/versions", deps.Documents.Versions)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)

	authGroup.PUT("/documents/:id/edit", deps.Documents.Edit)
	authGroup.POST("/documents/:id/save", deps.Documents.SaveNow)
	authGroup.DELETE("/documents/:id/session", deps.Documents.CloseSession)

	authGroup.POST("/generate", deps.Streams.Generate)
	authGroup.GET("/streams/:id", deps.Streams.Attach)
	authGroup.GET("/chats/:id/stream", deps.Streams.LatestStream)
}
