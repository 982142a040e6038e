package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sword-client/config"
	"sword-client/models"
	"sword-client/services"
	"sword-client/storage"
	"sword-client/sword"
	"sword-client/sword/arxiv"
)

// Shown to end users when the workflow state is broken; details only go to
// the admin-alerting log channel.
const genericErrorMsg = "An error has occurred. The administrators have been informed."

var (
	submissionsCompletedCounter prometheus.Counter
	documentRefreshCounter      prometheus.Counter
)

func init() {
	submissionsCompletedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sword_submissions_completed_total",
			Help: "Total number of submissions deposited and archived.",
		},
	)
	documentRefreshCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sword_service_document_refreshes_total",
			Help: "Total number of service document refreshes.",
		},
	)
	prometheus.MustRegister(submissionsCompletedCounter, documentRefreshCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.RemoteServer{},
		&models.ArchivedSubmission{},
		&models.TempSubmission{},
		&models.Record{},
		&models.RecordFile{},
	)

	seedDefaultArxivServer(db, cfg, logging)

	arxiv.Verbose = cfg.ArxivVerbose
	arxiv.DryRun = cfg.ArxivDryRun

	logging.Info("Registered deposit engines", zap.Strings("engines", sword.Engines()))

	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	media := storage.NewMediaSource(s3Client, cfg.S3Bucket)

	store := services.NewStore(db)
	workflow := services.NewWorkflow(store, media, logging, cfg.MaxContributors,
		sword.WithHTTPClient(&http.Client{Timeout: cfg.OutboundTimeout}),
		sword.WithUserAgent(cfg.UserAgent),
	)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupServerRoutes(router, store, workflow, logging)
	setupSubmissionRoutes(router, store, workflow, logging)
	setupSubmitRoutes(router, workflow, logging)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.RefreshCronSchedule, func() {
		logging.Info("Running scheduled service document refresh...")
		count, err := workflow.RefreshStaleServers(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("refreshed_servers", count))
			documentRefreshCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// seedDefaultArxivServer creates the default arXiv.org server row on first
// boot, when the table is empty and seed credentials are configured.
func seedDefaultArxivServer(db *gorm.DB, cfg *config.Config, log *zap.Logger) {
	var count int64
	if err := db.Model(&models.RemoteServer{}).Count(&count).Error; err != nil {
		log.Error("Counting servers for seeding failed", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}
	if cfg.SeedArxivUsername == "" || cfg.SeedArxivPassword == "" {
		log.Info("No seed credentials configured, skipping default server seed")
		return
	}
	server := models.RemoteServer{
		Name:            "arXiv.org",
		Engine:          "arxiv",
		Username:        cfg.SeedArxivUsername,
		Password:        cfg.SeedArxivPassword,
		Email:           cfg.SeedArxivEmail,
		UpdateFrequency: "1w",
	}
	if err := db.Create(&server).Error; err != nil {
		log.Error("Seeding default arXiv server failed", zap.Error(err))
		return
	}
	log.Info("Seeded default arXiv.org server", zap.Uint("server_id", server.ID))
}

// stepError translates workflow errors into HTTP responses. State errors
// stay generic towards the user.
func stepError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrState):
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericErrorMsg})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func setupServerRoutes(router *gin.Engine, store services.Storage, workflow *services.Workflow, log *zap.Logger) {
	rg := router.Group("/servers")

	rg.GET("", func(c *gin.Context) {
		servers, err := store.Servers(c.Request.Context())
		if err != nil {
			log.Error("Database query for servers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		views := make([]services.ServerView, 0, len(servers))
		for i := range servers {
			views = append(views, services.NewServerView(&servers[i]))
		}
		c.JSON(http.StatusOK, views)
	})

	type serverForm struct {
		Name            string `json:"name"`
		Engine          string `json:"engine"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		Email           string `json:"email"`
		UpdateFrequency string `json:"update_frequency"`
	}

	rg.POST("", func(c *gin.Context) {
		var req serverForm
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		server := models.RemoteServer{
			Name:            req.Name,
			Engine:          req.Engine,
			Username:        req.Username,
			Password:        req.Password,
			Email:           req.Email,
			UpdateFrequency: req.UpdateFrequency,
		}
		if err := services.ValidateServer(&server); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.CreateServer(c.Request.Context(), &server); err != nil {
			log.Error("Creating server failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusCreated, services.NewServerView(&server))
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
			return
		}
		server, err := store.Server(c.Request.Context(), uint(id))
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		if err != nil {
			log.Error("DB error loading server on PUT", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		var req serverForm
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		server.Name = req.Name
		server.Engine = req.Engine
		server.Username = req.Username
		if req.Password != "" {
			server.Password = req.Password
		}
		server.Email = req.Email
		server.UpdateFrequency = req.UpdateFrequency
		if err := services.ValidateServer(server); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.UpdateServer(c.Request.Context(), server); err != nil {
			log.Error("Updating server failed", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, services.NewServerView(server))
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
			return
		}
		if err := store.DeleteServer(c.Request.Context(), uint(id)); err != nil {
			log.Error("Deleting server failed", zap.Uint64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	})

	rg.POST("/:id/refresh", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid server id"})
			return
		}
		if err := workflow.RefreshServer(c.Request.Context(), uint(id)); err != nil {
			log.Warn("Manual service document refresh failed", zap.Uint64("id", id), zap.Error(err))
			stepError(c, log, err)
			return
		}
		documentRefreshCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"refreshed": true, "last_updated": "Just now"})
	})
}

func setupSubmissionRoutes(router *gin.Engine, store services.Storage, workflow *services.Workflow, log *zap.Logger) {
	rg := router.Group("/submissions")

	rg.GET("", func(c *gin.Context) {
		listings, err := store.Submissions(c.Request.Context())
		if err != nil {
			log.Error("Database query for submissions failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, listings)
	})

	rg.POST("/status", func(c *gin.Context) {
		var req struct {
			ServerID  uint   `json:"server_id"`
			StatusURL string `json:"status_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		resp, err := workflow.PollStatus(c.Request.Context(), req.ServerID, req.StatusURL)
		if err != nil {
			stepError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})
}

func setupSubmitRoutes(router *gin.Engine, workflow *services.Workflow, log *zap.Logger) {
	router.POST("/submit", func(c *gin.Context) {
		var req struct {
			UserID   uint `json:"user_id"`
			RecordID uint `json:"record_id"`
			ServerID uint `json:"server_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := workflow.Start(c.Request.Context(), req.UserID, req.RecordID, req.ServerID)
		if err != nil {
			stepError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg := router.Group("/submit/:sid")

	rg.POST("/server", func(c *gin.Context) {
		var req struct {
			ServerID uint `json:"server_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := workflow.ChooseServer(c.Request.Context(), c.Param("sid"), req.ServerID)
		if err != nil {
			stepError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/collection", func(c *gin.Context) {
		var req struct {
			CollectionURL string `json:"collection_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := workflow.ChooseCollection(c.Request.Context(), c.Param("sid"), req.CollectionURL)
		if err != nil {
			stepError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/categories", func(c *gin.Context) {
		var req struct {
			Mandatory string   `json:"mandatory"`
			Optional  []string `json:"optional"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := workflow.ChooseCategories(c.Request.Context(), c.Param("sid"), req.Mandatory, req.Optional)
		if err != nil {
			stepError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	rg.POST("/finalize", func(c *gin.Context) {
		var req services.FinalizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		result, err := workflow.Finalize(c.Request.Context(), c.Param("sid"), req)
		if err != nil {
			stepError(c, log, err)
			return
		}
		if result.Archived {
			submissionsCompletedCounter.Inc()
		}
		c.JSON(http.StatusOK, result)
	})
}
