package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mediaforge/internal/api"
	"mediaforge/internal/config"
	"mediaforge/internal/model"
	"mediaforge/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	if repo != nil {
		if err := model.SeedDefaultAdmin(context.Background(), repo, cfg); err != nil {
			logrus.WithError(err).Warn("failed to seed default admin")
		}
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", httpHandler.AuthStatus)
	authGroup.POST("/register", httpHandler.Register)
	authGroup.POST("/login", httpHandler.Login)
	authGroup.GET("/me", httpHandler.AuthMiddleware(), httpHandler.Me)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())
	protected.GET("/models", httpHandler.ListModels)
	protected.GET("/models/:id/route", httpHandler.ResolveModelRoute)

	protected.GET("/projects", httpHandler.ListProjects)
	protected.POST("/projects", httpHandler.CreateProject)
	protected.PATCH("/projects/:id", httpHandler.UpdateProject)
	protected.DELETE("/projects/:id", httpHandler.DeleteProject)
	protected.GET("/projects/:id/sessions", httpHandler.ListSessions)
	protected.POST("/projects/:id/sessions", httpHandler.CreateSession)
	protected.DELETE("/sessions/:id", httpHandler.DeleteSession)

	protected.POST("/sessions/:id/generations", httpHandler.CreateGeneration)
	protected.GET("/sessions/:id/generations", httpHandler.ListSessionGenerations)
	protected.GET("/generations", httpHandler.ListGenerations)
	protected.GET("/generations/:id", httpHandler.GetGeneration)
	protected.DELETE("/generations/:id", httpHandler.DeleteGeneration)
	protected.POST("/generations/:id/retry", httpHandler.RetryGeneration)

	protected.GET("/prompt-templates", httpHandler.ListPromptTemplates)

	userAdmin := protected.Group("/users")
	userAdmin.Use(httpHandler.RequireAdmin())
	userAdmin.GET("", httpHandler.ListUsers)
	userAdmin.POST("", httpHandler.CreateUser)
	userAdmin.PATCH(":id", httpHandler.UpdateUser)
	userAdmin.DELETE(":id", httpHandler.DeleteUser)

	admin := protected.Group("/admin")
	admin.Use(httpHandler.RequireAdmin())
	admin.POST("/generations/sweep", httpHandler.SweepGenerations)
	admin.PATCH("/outputs/:id/approval", httpHandler.ApproveOutput)
	admin.POST("/prompt-templates", httpHandler.CreatePromptTemplate)
	admin.PATCH("/prompt-templates/:id", httpHandler.UpdatePromptTemplate)
	admin.DELETE("/prompt-templates/:id", httpHandler.DeletePromptTemplate)

	internal := apiGroup.Group("/internal")
	internal.Use(httpHandler.RequireInternalToken())
	internal.POST("/generations/process", httpHandler.ProcessGeneration)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("server starting")
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("server failed to start")
	}
}

// CORSMiddleware handles cross-origin requests.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware logs each request after completion.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
