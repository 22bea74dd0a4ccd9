package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"story-weaver/internal/controller"
	"story-weaver/internal/models"
	"story-weaver/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StoryController - операции контроллера, которые нужны HTTP слою.
type StoryController interface {
	Start(ctx context.Context, premise, genre, tone string, image *models.ImagePart) error
	Advance(ctx context.Context, choice string) error
	Restart()
	Status() controller.Status
	History() ([]models.HistoryEntry, error)
}

// startBodyOverhead - запас на поля формы сверх закодированной картинки.
const startBodyOverhead = 64 << 10

// StoryHandler обслуживает HTTP API истории.
type StoryHandler struct {
	controller    StoryController
	imageMaxBytes int
	logger        *zap.Logger
}

// NewStoryHandler создает обработчик HTTP API.
func NewStoryHandler(ctrl StoryController, imageMaxBytes int, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		controller:    ctrl,
		imageMaxBytes: imageMaxBytes,
		logger:        logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты API.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/story")
	{
		api.GET("", h.getStory)
		api.GET("/history", h.getHistory)
		api.POST("/start", h.start)
		api.POST("/advance", h.advance)
		api.POST("/restart", h.restart)
	}
}

// start принимает JSON (картинка в base64) или multipart/form-data (картинка файлом в поле image).
// Ответ отдаётся после того, как рассказчик вернул первый фрагмент.
func (h *StoryHandler) start(c *gin.Context) {
	var req startRequest
	var image *models.ImagePart
	var err error

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxStartBodyBytes())

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			h.bindError(c, err)
			return
		}
		image, err = h.formImage(c)
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.bindError(c, err)
			return
		}
		image, err = h.jsonImage(req.Image)
	}
	if err != nil {
		h.logger.Warn("Image rejected", zap.Error(err))
		h.handleServiceError(c, err)
		return
	}

	if err := h.controller.Start(c.Request.Context(), req.Premise, req.Genre, req.Tone, image); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStoryResponse(h.controller.Status()))
}

func (h *StoryHandler) advance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request data: " + err.Error()})
		return
	}

	if err := h.controller.Advance(c.Request.Context(), req.Choice); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStoryResponse(h.controller.Status()))
}

func (h *StoryHandler) restart(c *gin.Context) {
	h.controller.Restart()
	c.JSON(http.StatusOK, newStoryResponse(h.controller.Status()))
}

func (h *StoryHandler) getStory(c *gin.Context) {
	c.JSON(http.StatusOK, newStoryResponse(h.controller.Status()))
}

func (h *StoryHandler) getHistory(c *gin.Context) {
	history, err := h.controller.History()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// maxStartBodyBytes - предел тела /start: картинка в base64 плюс поля формы.
func (h *StoryHandler) maxStartBodyBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(h.imageMaxBytes)) + startBodyOverhead
}

// bindError отвечает на ошибку разбора тела. Превышение предела тела - 413.
func (h *StoryHandler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.logger.Warn("Request body too large", zap.Int64("limit", tooLarge.Limit))
		h.handleServiceError(c, fmt.Errorf("%w: request body exceeds %d bytes", models.ErrImageTooLarge, tooLarge.Limit))
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: ErrCodeBadRequest, Message: "Invalid request data: " + err.Error()})
}

func (h *StoryHandler) formImage(c *gin.Context) (*models.ImagePart, error) {
	header, err := c.FormFile("image")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageEncoding, err)
	}
	if header.Size > int64(h.imageMaxBytes) {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", models.ErrImageTooLarge, header.Size, h.imageMaxBytes)
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageEncoding, err)
	}
	defer f.Close()
	return service.EncodeImageReader(f, header.Header.Get("Content-Type"), h.imageMaxBytes)
}

func (h *StoryHandler) jsonImage(p *imagePayload) (*models.ImagePart, error) {
	if p == nil {
		return nil, nil
	}
	// размер проверяется до декодирования
	if size := decodedSize(p.Data); size > h.imageMaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", models.ErrImageTooLarge, size, h.imageMaxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", models.ErrImageEncoding, err)
	}
	return service.EncodeImage(data, p.MIMEType, h.imageMaxBytes)
}

// decodedSize - длина данных после декодирования base64 без учёта паддинга.
func decodedSize(encoded string) int {
	padding := len(encoded) - len(strings.TrimRight(encoded, "="))
	return base64.StdEncoding.DecodedLen(len(encoded)) - padding
}
