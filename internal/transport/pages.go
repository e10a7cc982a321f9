package transport

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/flow"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/session"
)

func render(c *gin.Context, deps Dependencies, cfg *config.Config, outcome *flow.Outcome) {
	view := deps.Flow.BuildView(currentSession(c), cfg.Title, cfg.Layout, outcome)
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "page.html", view)
}

func showPage(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		render(c, deps, cfg, nil)
	}
}

// readUpload returns the multipart file in field "file".
func readUpload(c *gin.Context) (filename, mimeType string, data []byte, err error) {
	header, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", "", nil, apperrors.NewTooLargeError("File too large", err)
		}
		return "", "", nil, apperrors.NewValidationError("No image data provided", err)
	}

	f, err := header.Open()
	if err != nil {
		return "", "", nil, apperrors.NewInternalError("failed to open upload", err)
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		return "", "", nil, apperrors.NewInternalError("failed to read upload", err)
	}
	return header.Filename, header.Header.Get("Content-Type"), data, nil
}

func uploadImage(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)

		filename, mimeType, data, err := readUpload(c)
		if err == nil {
			_, err = deps.Flow.Upload(c.Request.Context(), sess, filename, mimeType, data)
		}
		if err != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"session_id": sess.ID,
				"filename":   filename,
			}).Warn("Upload rejected")
			sess.AddNotices(session.Notice{Level: session.LevelError, Message: userMessage(err)})
		}

		c.Redirect(http.StatusSeeOther, "/")
	}
}

// detectImage runs the detect action. The persistent layout redirects back
// to the page so the refreshed result slot is shown; the ephemeral layout
// renders the result inline in this response only.
func detectImage(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		outcome := deps.Flow.Detect(c.Request.Context(), sess)

		if cfg.Layout == config.LayoutEphemeral {
			render(c, deps, cfg, &outcome)
			return
		}

		sess.AddNotices(outcome.Notices...)
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func resetSession(deps Dependencies, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps.Store.Delete(currentSession(c).ID)
		setSessionCookie(c, cfg.SessionCookieName, "", -1)
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func inputImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		upload := currentSession(c).Upload()
		if upload == nil {
			respondError(c, http.StatusNotFound, "no image uploaded", apperrors.NewNotFoundError("Please upload an image first", nil))
			return
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, upload.Pixels.ToRGBA(), imaging.PNG); err != nil {
			respondError(c, http.StatusInternalServerError, "failed to encode image", err)
			return
		}
		c.Header("Cache-Control", "private, max-age=3600")
		c.Data(http.StatusOK, "image/png", buf.Bytes())
	}
}

func resultImage() gin.HandlerFunc {
	return func(c *gin.Context) {
		slot := currentSession(c).Result()
		if slot == nil {
			respondError(c, http.StatusNotFound, "no detection result", apperrors.NewNotFoundError("No detection result yet", nil))
			return
		}
		c.Header("Cache-Control", "private, max-age=3600")
		c.Data(http.StatusOK, "image/png", slot.PNG)
	}
}
