package transport

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/flow"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/internal/session"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

const version = "1.0.0"

//go:embed templates/*.html
var templateFS embed.FS

// Dependencies are the services the HTTP layer drives. History and Metrics
// are optional.
type Dependencies struct {
	Flow    *flow.Flow
	Store   *session.Store
	History repository.DetectionRunRepository
	Metrics *observer.MetricsObserver
}

func pageTemplate() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		// data URIs are produced by the flow from encoded PNG bytes
		"dataURI": func(s string) template.URL { return template.URL(s) },
	}).ParseFS(templateFS, "templates/*.html"))
}

func NewHandler(deps Dependencies, cfg *config.Config) http.Handler {
	r := gin.Default()
	r.SetHTMLTemplate(pageTemplate())

	r.Use(requestSizeLimiter(cfg.MaxRequestBodySize))

	r.GET("/health", healthCheck(deps))

	pages := r.Group("/", sessionMiddleware(deps.Store, cfg.SessionCookieName))
	{
		pages.GET("/", showPage(deps, cfg))
		pages.POST("/upload", uploadImage(deps))
		pages.POST("/detect", detectImage(deps, cfg))
		pages.POST("/reset", resetSession(deps, cfg))
		pages.GET("/images/input.png", inputImage())
		pages.GET("/images/result.png", resultImage())
	}

	api := r.Group("/api/v1")
	{
		api.POST("/detect", detectOnce(deps, cfg))
		api.GET("/history", listHistory(deps))
		api.GET("/history/:id", getHistoryRun(deps))
		api.GET("/stats", stats(deps))
	}

	return r
}

func healthCheck(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		capability := deps.Flow.Capability()
		status := models.DetectorStatus{
			Available: capability.Available(),
			Reason:    string(capability.Kind()),
			Message:   capability.StartupMessage(),
			ModelPath: capability.ModelPath(),
			Classes:   capability.ClassNames(),
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   "available",
			Version:  version,
			Time:     time.Now().UTC().Format(time.RFC3339),
			Detector: status,
			Sessions: deps.Store.Len(),
		})
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// determineStatusCode maps err to a status. Context errors win over the
// AppError wrapping them.
func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	case errors.As(err, &appErr):
		return appErr.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %s", message, userMessage(err)),
	})
}

// userMessage is the text shown to a user for err.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if appErr.Details != "" {
			msg += " (" + appErr.Details + ")"
		}
		if appErr.Type == apperrors.ErrorTypeProcessing && appErr.Cause != nil {
			msg += ": " + appErr.Cause.Error()
		}
		return msg
	}
	return err.Error()
}
