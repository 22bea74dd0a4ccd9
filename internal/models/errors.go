package models

import "errors"

// Application-wide standard errors
var (
	// Tree structure errors. Indicate a control-flow bug, not a user mistake.
	ErrNotFound = errors.New("story node not found")

	// Gameplay errors
	ErrInvalidChoice = errors.New("choice is not offered at the current position")
	ErrInvalidState  = errors.New("operation is not allowed in the current story state")
	ErrStaleResponse = errors.New("generation result belongs to a discarded story")

	// Generation errors (recoverable, user may retry)
	ErrGenerationFailed  = errors.New("story generation failed")
	ErrMalformedResponse = errors.New("AI returned a response in an unexpected format")

	// Upload errors
	ErrImageTooLarge  = errors.New("image is too large")
	ErrImageEncoding  = errors.New("could not process the image file")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInternalServer = errors.New("internal server error")
)

// IsGenerationError сообщает, относится ли ошибка к классу ошибок генерации.
// Для пользователя MalformedResponse ничем не отличается от GenerationFailed.
func IsGenerationError(err error) bool {
	return errors.Is(err, ErrGenerationFailed) || errors.Is(err, ErrMalformedResponse)
}
