package handler

import (
	"story-weaver/internal/controller"
	"story-weaver/internal/story"
)

// ErrorResponse - стандартный ответ об ошибке.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Коды ошибок API.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeInvalidChoice    = "invalid_choice"
	ErrCodeConflict         = "conflict"
	ErrCodeImageTooLarge    = "image_too_large"
	ErrCodeImageEncoding    = "image_encoding"
	ErrCodeGenerationFailed = "generation_failed"
	ErrCodeInternal         = "internal"
)

type imagePayload struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data" binding:"required"`
}

type startRequest struct {
	Premise string        `json:"premise" form:"premise" binding:"required"`
	Genre   string        `json:"genre" form:"genre"`
	Tone    string        `json:"tone" form:"tone"`
	Image   *imagePayload `json:"image" form:"-"`
}

type advanceRequest struct {
	Choice string `json:"choice" binding:"required"`
}

// storyResponse - статус контроллера вместе с моделью дерева для визуализации.
type storyResponse struct {
	controller.Status
	Story *story.Snapshot `json:"story,omitempty"`
}

func newStoryResponse(status controller.Status) storyResponse {
	resp := storyResponse{Status: status}
	if status.Tree != nil {
		snap := status.Tree.Snapshot(status.CurrentID)
		resp.Story = &snap
	}
	return resp
}
