package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// Поддерживаемые реализации AI клиента
const (
	AIClientOpenAI = "openai"
	AIClientOllama = "ollama"
)

// DefaultImageMaxBytes - потолок размера изображения для начальной генерации (2 МБ).
const DefaultImageMaxBytes = 2 * 1024 * 1024

// Config содержит конфигурацию рассказчика
type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// Логирование
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// HTTP сервер
	ServerPort         string   `envconfig:"SERVER_PORT" default:"8080"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Настройки AI
	AIClientType     string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1"`
	AIModel          string        `envconfig:"AI_MODEL" default:"google/gemini-2.5-flash"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"1s"`
	AITemperature    float64       `envconfig:"AI_TEMPERATURE" default:"0.8"`
	AIMaxTokens      int           `envconfig:"AI_MAX_TOKENS" default:"0"` // 0 - без лимита

	// Загрузка изображений
	ImageMaxBytes int `envconfig:"IMAGE_MAX_BYTES" default:"2097152"`

	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string `ignored:"true"`
}

// SecretsDir - каталог Docker Secrets. Переменная, чтобы тесты могли подменить путь.
var SecretsDir = "/run/secrets"

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	key, err := ReadSecret("ai_api_key")
	if err != nil {
		// Fallback на переменную окружения для локального запуска
		key = strings.TrimSpace(os.Getenv("AI_API_KEY"))
	}
	cfg.AIAPIKey = key

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.AIClientType) {
	case AIClientOpenAI:
		if c.AIAPIKey == "" {
			errs = append(errs, errors.New("AI API key is required for the openai client (secret ai_api_key or AI_API_KEY)"))
		}
	case AIClientOllama:
	default:
		errs = append(errs, fmt.Errorf("неизвестный тип AI клиента: '%s'", c.AIClientType))
	}
	if c.AIMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("AI_MAX_ATTEMPTS must be >= 1, got %d", c.AIMaxAttempts))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, fmt.Errorf("AI_TIMEOUT must be positive, got %v", c.AITimeout))
	}
	if c.ImageMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("IMAGE_MAX_BYTES must be positive, got %d", c.ImageMaxBytes))
	}
	return errors.Join(errs...)
}

// LogFields возвращает поля конфигурации для лога (без секретов).
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Env),
		zap.String("server_port", c.ServerPort),
		zap.String("ai_client_type", c.AIClientType),
		zap.String("ai_base_url", c.AIBaseURL),
		zap.String("ai_model", c.AIModel),
		zap.Duration("ai_timeout", c.AITimeout),
		zap.Int("ai_max_attempts", c.AIMaxAttempts),
		zap.Duration("ai_base_retry_delay", c.AIBaseRetryDelay),
		zap.Float64("ai_temperature", c.AITemperature),
		zap.Int("image_max_bytes", c.ImageMaxBytes),
		zap.Bool("ai_api_key_loaded", c.AIAPIKey != ""),
	}
}

// ReadSecret читает секрет из файла в стандартном пути Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("%s/%s", SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}
