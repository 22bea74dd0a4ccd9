package service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"story-weaver/internal/config"
	"story-weaver/internal/models"
	"story-weaver/internal/schemas"

	"go.uber.org/zap"
)

// InitialRequest - входные данные для начала истории.
type InitialRequest struct {
	Premise string
	Genre   string
	Tone    string
	Image   *models.ImagePart
}

// Narrator - генератор повествования: по завязке или истории и выбору
// возвращает следующий фрагмент и варианты продолжения.
type Narrator interface {
	GenerateInitialStory(ctx context.Context, req InitialRequest) (*models.Segment, error)
	GenerateStorySegment(ctx context.Context, history []models.HistoryEntry, currentChoice string) (*models.Segment, error)
}

type storyNarrator struct {
	aiClient   AIClient
	params     GenerationParams
	attempts   int
	retryDelay time.Duration
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

// NewNarrator создает рассказчика поверх AI клиента.
func NewNarrator(aiClient AIClient, cfg *config.Config, logger *zap.Logger) Narrator {
	temperature := cfg.AITemperature
	params := GenerationParams{Temperature: &temperature}
	if cfg.AIMaxTokens > 0 {
		maxTokens := cfg.AIMaxTokens
		params.MaxTokens = &maxTokens
	}
	attempts := cfg.AIMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &storyNarrator{
		aiClient:   aiClient,
		params:     params,
		attempts:   attempts,
		retryDelay: cfg.AIBaseRetryDelay,
		timeout:    cfg.AITimeout,
		sleep:      sleepCtx,
		logger:     logger.Named("Narrator"),
	}
}

// GenerateInitialStory генерирует первый фрагмент истории.
func (n *storyNarrator) GenerateInitialStory(ctx context.Context, req InitialRequest) (*models.Segment, error) {
	if strings.TrimSpace(req.Premise) == "" {
		return nil, fmt.Errorf("%w: premise is empty", models.ErrInvalidInput)
	}
	genre := valueOr(req.Genre, DefaultGenre)
	tone := valueOr(req.Tone, DefaultTone)

	log := n.logger.With(zap.String("operation", "initial"), zap.String("genre", genre), zap.String("tone", tone))
	return n.generate(ctx, log, initialSystemPrompt(genre, tone), initialUserPrompt(req.Premise, req.Image != nil), req.Image)
}

// GenerateStorySegment продолжает историю по выбору пользователя.
func (n *storyNarrator) GenerateStorySegment(ctx context.Context, history []models.HistoryEntry, currentChoice string) (*models.Segment, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: history is empty", models.ErrInvalidInput)
	}
	if strings.TrimSpace(currentChoice) == "" {
		return nil, fmt.Errorf("%w: choice is empty", models.ErrInvalidInput)
	}

	log := n.logger.With(zap.String("operation", "continue"), zap.Int("history_len", len(history)))
	return n.generate(ctx, log, continuationSystemPrompt, continuationUserPrompt(history, currentChoice), nil)
}

// generate вызывает AI с повторными попытками (экспоненциальная задержка с джиттером)
// и строго разбирает ответ.
func (n *storyNarrator) generate(ctx context.Context, log *zap.Logger, systemPrompt, userInput string, image *models.ImagePart) (*models.Segment, error) {
	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, n.timeout)
		text, usage, err := n.aiClient.GenerateText(attemptCtx, systemPrompt, userInput, image, n.params)
		cancel()

		if err == nil {
			seg, parseErr := schemas.ParseSegment(text)
			if parseErr == nil {
				log.Info("Story segment generated",
					zap.Int("attempt", attempt),
					zap.Int("choices", len(seg.Choices)),
					zap.Int("total_tokens", usage.TotalTokens))
				return seg, nil
			}
			err = parseErr
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		log.Warn("Generation attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", n.attempts), zap.Error(err))
		if attempt == n.attempts {
			break
		}
		if sleepErr := n.sleep(ctx, n.backoff(attempt)); sleepErr != nil {
			break
		}
	}

	if !models.IsGenerationError(lastErr) {
		lastErr = fmt.Errorf("%w: %v", models.ErrGenerationFailed, lastErr)
	}
	log.Error("Story generation failed", zap.Error(lastErr))
	return nil, lastErr
}

func (n *storyNarrator) backoff(attempt int) time.Duration {
	delay := float64(n.retryDelay) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)
	wait := time.Duration(delay)
	if wait < n.retryDelay {
		wait = n.retryDelay
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
