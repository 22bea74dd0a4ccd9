package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"story-weaver/internal/config"
	"story-weaver/internal/models"
	"story-weaver/internal/schemas"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// GenerationParams - параметры генерации.
// Используем указатели, чтобы отличить 0/0.0 от отсутствия.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_weaver_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_weaver_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "story_weaver_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "estimated"},
	)
)

// UsageInfo содержит информацию об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool // true, если бэкенд не вернул usage и токены посчитаны локально
}

// AIClient интерфейс для взаимодействия с AI API.
// Ответ всегда запрашивается в формате JSON по схеме рассказчика.
type AIClient interface {
	// GenerateText генерирует текст на основе системного промта, ввода пользователя,
	// необязательного изображения и параметров.
	GenerateText(ctx context.Context, systemPrompt string, userInput string, image *models.ImagePart, params GenerationParams) (string, UsageInfo, error)
}

// --- OpenAI Client Implementation ---

// openAIClient реализует AIClient с использованием go-openai
type openAIClient struct {
	client *openaigo.Client
	model  string
	format *openaigo.ChatCompletionResponseFormat
	logger *zap.Logger
}

func newOpenAIClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	schema, err := schemas.SegmentSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build response schema: %w", err)
	}

	openaiConfig := openaigo.DefaultConfig(cfg.AIAPIKey)
	openaiConfig.BaseURL = cfg.AIBaseURL
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.AITimeout}

	logger.Info("OpenAI client created",
		zap.String("base_url", cfg.AIBaseURL),
		zap.String("model", cfg.AIModel),
		zap.Duration("timeout", cfg.AITimeout))

	return &openAIClient{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  cfg.AIModel,
		format: &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaigo.ChatCompletionResponseFormatJSONSchema{
				Name:   "story_segment",
				Schema: schema,
			},
		},
		logger: logger,
	}, nil
}

// GenerateText генерирует текст на основе системного промта и ввода пользователя
func (c *openAIClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, image *models.ImagePart, params GenerationParams) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: системный промт пуст", models.ErrGenerationFailed)
	}

	userMessage := openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser}
	if image != nil {
		userMessage.MultiContent = []openaigo.ChatMessagePart{
			{
				Type: openaigo.ChatMessagePartTypeImageURL,
				ImageURL: &openaigo.ChatMessageImageURL{
					URL:    "data:" + image.MIMEType + ";base64," + image.Data,
					Detail: openaigo.ImageURLDetailAuto,
				},
			},
			{Type: openaigo.ChatMessagePartTypeText, Text: userInput},
		}
	} else {
		userMessage.Content = userInput
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt},
		userMessage,
	}

	startTime := time.Now()
	c.logger.Debug("Sending request to AI",
		zap.String("model", c.model),
		zap.Int("system_prompt_bytes", len(systemPrompt)),
		zap.Int("user_input_bytes", len(userInput)),
		zap.Bool("with_image", image != nil))

	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: c.format,
		Temperature:    float32Val(params.Temperature),
		MaxTokens:      intVal(params.MaxTokens),
		TopP:           float32Val(params.TopP),
	})
	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("AI API error", zap.Duration("duration", duration), zap.Error(err))
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("AI API returned empty response", zap.Duration("duration", duration))
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", usageInfo, fmt.Errorf("%w: получен пустой ответ", models.ErrMalformedResponse)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	generatedText := resp.Choices[0].Message.Content
	if resp.Usage.TotalTokens > 0 {
		usageInfo.PromptTokens = resp.Usage.PromptTokens
		usageInfo.CompletionTokens = resp.Usage.CompletionTokens
		usageInfo.TotalTokens = resp.Usage.TotalTokens
	} else {
		// Не все OpenAI-совместимые API возвращают usage
		usageInfo = estimateUsage(c.model, systemPrompt+userInput, generatedText)
	}
	if usageInfo.TotalTokens > 0 {
		aiTotalTokens.WithLabelValues(c.model, fmt.Sprint(usageInfo.Estimated)).Observe(float64(usageInfo.TotalTokens))
	}

	c.logger.Debug("AI response received",
		zap.Duration("duration", duration),
		zap.Int("response_len", len(generatedText)),
		zap.Int("total_tokens", usageInfo.TotalTokens))

	return generatedText, usageInfo, nil
}

// estimateUsage считает токены локально через tiktoken.
// Для моделей, неизвестных tiktoken, используется cl100k_base.
func estimateUsage(model, prompt, completion string) UsageInfo {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return UsageInfo{}
		}
	}
	promptTokens := len(tke.Encode(prompt, nil, nil))
	completionTokens := len(tke.Encode(completion, nil, nil))
	return UsageInfo{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Estimated:        true,
	}
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0 // 0 - API подставит значение по умолчанию
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// --- Ollama Client Implementation ---

// ollamaClient реализует AIClient с использованием ollama/api
type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	format  json.RawMessage
	logger  *zap.Logger
}

// newOllamaClient создает новый клиент для взаимодействия с Ollama
func newOllamaClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	// api.NewClient требует URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(cfg.AIBaseURL, "/")
	ollamaBaseURL = strings.TrimSuffix(ollamaBaseURL, "/v1")

	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", ollamaBaseURL, err)
	}

	format, err := schemas.SegmentSchemaJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to build response schema: %w", err)
	}

	logger.Info("Ollama client created",
		zap.String("base_url", ollamaBaseURL),
		zap.String("model", cfg.AIModel),
		zap.Duration("timeout", cfg.AITimeout))

	return &ollamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.AITimeout}),
		model:   cfg.AIModel,
		timeout: cfg.AITimeout,
		format:  format,
		logger:  logger,
	}, nil
}

// GenerateText генерирует текст с использованием Ollama
func (c *ollamaClient) GenerateText(ctx context.Context, systemPrompt string, userInput string, image *models.ImagePart, params GenerationParams) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if strings.TrimSpace(systemPrompt) == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: системный промт пуст", models.ErrGenerationFailed)
	}

	userMessage := api.Message{Role: "user", Content: userInput}
	if image != nil {
		userMessage.Images = []api.ImageData{image.Raw}
	}
	messages := []api.Message{
		{Role: "system", Content: systemPrompt},
		userMessage,
	}

	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil && *params.MaxTokens > 0 {
		options["num_predict"] = *params.MaxTokens
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Format:   c.format,
		Options:  options,
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	startTime := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r // Сохраняем последний (полный) ответ
		return nil
	})
	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Warn("Ollama API timeout", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			c.logger.Warn("Ollama API error", zap.Duration("duration", duration), zap.Error(err))
		}
		aiRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", usageInfo, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	if resp.Message.Content == "" {
		aiRequestsTotal.WithLabelValues(c.model, "error_empty_response").Inc()
		return "", usageInfo, fmt.Errorf("%w: получен пустой ответ", models.ErrMalformedResponse)
	}

	aiRequestsTotal.WithLabelValues(c.model, "success").Inc()
	aiRequestDuration.WithLabelValues(c.model).Observe(duration.Seconds())

	usageInfo.PromptTokens = resp.PromptEvalCount
	usageInfo.CompletionTokens = resp.EvalCount
	usageInfo.TotalTokens = resp.PromptEvalCount + resp.EvalCount
	if usageInfo.TotalTokens > 0 {
		aiTotalTokens.WithLabelValues(c.model, "false").Observe(float64(usageInfo.TotalTokens))
	}

	c.logger.Debug("Ollama response received",
		zap.Duration("duration", duration),
		zap.Int("response_len", len(resp.Message.Content)),
		zap.Int("total_tokens", usageInfo.TotalTokens))

	return resp.Message.Content, usageInfo, nil
}

// --- Factory Function ---

// NewAIClient создает новый клиент для взаимодействия с AI в зависимости от конфигурации
func NewAIClient(cfg *config.Config, logger *zap.Logger) (AIClient, error) {
	logger = logger.Named("AIClient")
	switch strings.ToLower(cfg.AIClientType) {
	case config.AIClientOpenAI:
		return newOpenAIClient(cfg, logger)
	case config.AIClientOllama:
		return newOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.AIClientType)
	}
}
