package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

func toModelBoxes(boxes []detector.Box) []models.DetectionBox {
	out := make([]models.DetectionBox, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, models.DetectionBox{
			Label:      b.Label,
			ClassID:    b.ClassID,
			Confidence: b.Confidence,
			BBox:       [4]float32{b.X1, b.Y1, b.X2, b.Y2},
		})
	}
	return out
}

func toModelRun(run *repository.DetectionRun) models.Run {
	return models.Run{
		ID:                run.ID,
		SessionID:         run.SessionID,
		Filename:          run.Filename,
		Format:            run.Format,
		Mode:              run.Mode,
		Width:             run.Width,
		Height:            run.Height,
		Status:            string(run.Status),
		BoxCount:          run.BoxCount,
		Boxes:             toModelBoxes(run.Boxes),
		ErrorMessage:      run.ErrorMessage,
		ProcessingTimeSec: run.ProcessingTime.Seconds(),
		ArchiveURL:        run.ArchiveURL,
		CreatedAt:         run.CreatedAt,
	}
}

// detectOnce runs a stateless detection on a multipart upload. Pass
// ?image=false to omit the annotated PNG from the response.
func detectOnce(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing detection request")

		filename, mimeType, data, err := readUpload(c)
		if err != nil {
			respondError(c, determineStatusCode(err), "invalid upload", err)
			return
		}

		upload, err := deps.Flow.Ingest(filename, mimeType, data)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid image", err)
			return
		}

		slot, boxes, err := deps.Flow.DetectOnce(ctx, upload)
		if err != nil {
			respondError(c, determineStatusCode(err), "detection failed", err)
			return
		}

		resp := models.DetectResponse{
			Filename:          upload.Filename,
			Format:            upload.Format,
			Mode:              upload.Mode,
			Width:             upload.Width,
			Height:            upload.Height,
			Timestamp:         time.Now().UTC().Format(time.RFC3339),
			ProcessingTimeSec: time.Since(startTime).Seconds(),
			Boxes:             toModelBoxes(boxes),
		}
		if c.DefaultQuery("image", "true") != "false" {
			resp.Image = base64.StdEncoding.EncodeToString(slot.PNG)
		}

		logger.WithFields(logrus.Fields{
			"filename":           upload.Filename,
			"boxes":              len(boxes),
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Detection completed successfully")

		c.JSON(http.StatusOK, resp)
	}
}

func historyUnavailable(c *gin.Context) {
	respondError(c, http.StatusServiceUnavailable, "history disabled",
		apperrors.NewUnavailableError("Detection history is not configured", repository.ErrRepositoryUnavailable))
}

func listHistory(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.History == nil {
			historyUnavailable(c)
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 || limit > 500 {
			respondError(c, http.StatusBadRequest, "invalid limit",
				apperrors.NewValidationError("limit must be between 1 and 500", err))
			return
		}

		runs, err := deps.History.ListRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to list history", err)
			return
		}

		resp := models.HistoryResponse{Runs: make([]models.Run, 0, len(runs)), Count: len(runs)}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, toModelRun(run))
		}
		c.JSON(http.StatusOK, resp)
	}
}

func getHistoryRun(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.History == nil {
			historyUnavailable(c)
			return
		}

		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid id", apperrors.NewValidationError("id must be an integer", err))
			return
		}

		run, err := deps.History.GetRun(c.Request.Context(), id)
		if errors.Is(err, repository.ErrRunNotFound) {
			respondError(c, http.StatusNotFound, "run not found", apperrors.NewNotFoundError("Detection run not found", err))
			return
		}
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to load run", err)
			return
		}
		c.JSON(http.StatusOK, toModelRun(run))
	}
}

func stats(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.StatsResponse{Process: map[string]interface{}{}}
		if deps.Metrics != nil {
			resp.Process = deps.Metrics.GetMetrics()
		}

		if deps.History != nil {
			counts, err := deps.History.CountByStatus(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "failed to count history", err)
				return
			}
			resp.History = make(map[string]int64, len(counts))
			for status, n := range counts {
				resp.History[string(status)] = n
			}
		}

		c.JSON(http.StatusOK, resp)
	}
}
