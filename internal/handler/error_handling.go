package handler

import (
	"errors"
	"net/http"

	"story-weaver/internal/controller"
	"story-weaver/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleServiceError переводит ошибку сервиса в HTTP ответ.
// Для ошибок генерации отдаётся сообщение, понятное пользователю.
func (h *StoryHandler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidChoice):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeInvalidChoice, Message: controller.InvalidChoiceMessage}
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrStaleResponse):
		statusCode = http.StatusConflict
		errResp = ErrorResponse{Code: ErrCodeConflict, Message: err.Error()}
	case errors.Is(err, models.ErrImageTooLarge):
		statusCode = http.StatusRequestEntityTooLarge
		errResp = ErrorResponse{Code: ErrCodeImageTooLarge, Message: "Image is too large. Please upload a file under 2MB."}
	case errors.Is(err, models.ErrImageEncoding):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: ErrCodeImageEncoding, Message: "Could not process the image file."}
	case models.IsGenerationError(err):
		message := h.controller.Status().Message
		if message == "" {
			message = controller.AdvanceFailedMessage
		}
		statusCode = http.StatusBadGateway
		errResp = ErrorResponse{Code: ErrCodeGenerationFailed, Message: message}
	default:
		// сюда же попадает ErrNotFound: при корректной работе контроллера его быть не должно
		h.logger.Error("Unhandled internal error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
