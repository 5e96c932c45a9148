package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pubmed-loader/config"
	"pubmed-loader/models"
	"pubmed-loader/services"
	"pubmed-loader/storage"
)

// maxHistoryLimit begrenzt ?limit= auf /api/history.
const maxHistoryLimit = storage.DefaultHistoryLimit * 10

// historyLister liefert die zuletzt beendeten Suchen.
type historyLister interface {
	Recent(ctx context.Context, limit int) ([]models.SearchRecord, error)
}

// optionalInt akzeptiert eine Zahl, eine Zahl als String, "" oder null.
// HTML-Formulare schicken leere Felder als "".
type optionalInt int

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*o = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*o = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return &models.ValidationError{Field: "max_results", Reason: "must be a positive integer"}
		}
		*o = optionalInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return &models.ValidationError{Field: "max_results", Reason: "must be a positive integer"}
	}
	*o = optionalInt(n)
	return nil
}

type startRequest struct {
	SearchTerm string      `json:"search_term"`
	Email      string      `json:"email"`
	MaxResults optionalInt `json:"max_results"`
}

type statusResponse struct {
	Status   string           `json:"status"`
	State    models.JobStatus `json:"state"`
	Phase    models.JobPhase  `json:"phase,omitempty"`
	Progress int              `json:"progress"`
	Total    int              `json:"total"`
	Skipped  int              `json:"skipped"`
	Terminal bool             `json:"terminal"`
	Error    string           `json:"error,omitempty"`
	JSONLink string           `json:"json_link,omitempty"`
	ZIPLink  string           `json:"zip_link,omitempty"`
}

func newStatusResponse(job models.Job) statusResponse {
	resp := statusResponse{
		Status:   job.StatusLabel(),
		State:    job.Status,
		Phase:    job.Phase,
		Progress: job.Progress,
		Total:    job.Total,
		Skipped:  job.Skipped,
		Terminal: job.Status.Terminal(),
		Error:    job.Error,
	}
	if job.Result != nil {
		resp.JSONLink = job.Result.JSONLink
		resp.ZIPLink = job.Result.ZIPLink
	}
	return resp
}

// newRouter baut den gin-Router mit allen Routen auf. history darf nil sein.
func newRouter(cfg *config.Config, loader *services.Loader, history historyLister, log *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupLoaderRoutes(router, loader, log)
	if history != nil {
		setupHistoryRoutes(router, history, log)
	}
	return router
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setupLoaderRoutes(router *gin.Engine, loader *services.Loader, log *zap.Logger) {
	rg := router.Group("/api")

	rg.POST("/start", func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				writeError(c, log, verr)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		id, err := loader.Submit(models.SearchQuery{
			Term:       req.SearchTerm,
			Email:      req.Email,
			MaxResults: int(req.MaxResults),
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"loader_id": id})
	})

	rg.GET("/status", func(c *gin.Context) {
		id, ok := loaderID(c)
		if !ok {
			return
		}
		job, err := loader.Status(id)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, newStatusResponse(job))
	})

	for _, kind := range []services.ArtifactKind{services.ArtifactJSON, services.ArtifactZIP} {
		rg.GET("/download/"+string(kind), func(c *gin.Context) {
			id, ok := loaderID(c)
			if !ok {
				return
			}
			data, err := loader.Artifact(id, kind)
			if err != nil {
				writeError(c, log, err)
				return
			}
			contentType := "application/json"
			if kind == services.ArtifactZIP {
				contentType = "application/zip"
			}
			c.Header("Content-Disposition", `attachment; filename="`+kind.FileName()+`"`)
			c.Data(http.StatusOK, contentType, data)
		})
	}
}

func setupHistoryRoutes(router *gin.Engine, history historyLister, log *zap.Logger) {
	router.GET("/api/history", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		limit = min(limit, maxHistoryLimit)
		records, err := history.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Error("Database query for search history failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, records)
	})
}

func loaderID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Query("loader_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "loader_id is required"})
		return "", false
	}
	return id, true
}

// writeError bildet Fehler des Loaders auf HTTP-Status ab.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, services.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "loader not found or expired"})
	case errors.Is(err, services.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "loader has not completed"})
	case errors.Is(err, services.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
