package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Режимы работы программы. В интерактивном режиме stdout занят формами.
const (
	ModeServe = "serve"
	ModePlay  = "play"
)

// DefaultPlayLogFile - файл логов для режима play, если путь не задан.
const DefaultPlayLogFile = "weaver-play.log"

// Config - настройки логгера.
type Config struct {
	Level      string // debug, info, warn, error
	Encoding   string // json или console
	OutputPath string // файл лога; пусто - stdout (в режиме play - DefaultPlayLogFile)
	Mode       string // ModeServe или ModePlay, попадает в поле "mode"
	// Writer, если задан, заменяет OutputPath.
	Writer io.Writer
}

// New собирает zap.Logger с полями app и mode.
func New(cfg Config) (*zap.Logger, error) {
	sink, err := cfg.sink()
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(newEncoder(cfg.Encoding), sink, parseLevel(cfg.Level))

	fields := []zap.Field{zap.String("app", "story-weaver")}
	if cfg.Mode != "" {
		fields = append(fields, zap.String("mode", cfg.Mode))
	}
	return zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(fields...), nil
}

// ResolvedOutputPath - куда реально пойдут логи при данном конфиге.
func (c Config) ResolvedOutputPath() string {
	switch {
	case c.Writer != nil:
		return ""
	case c.OutputPath != "":
		return c.OutputPath
	case c.Mode == ModePlay:
		return DefaultPlayLogFile
	default:
		return "stdout"
	}
}

func (c Config) sink() (zapcore.WriteSyncer, error) {
	if c.Writer != nil {
		return zapcore.AddSync(c.Writer), nil
	}
	path := c.ResolvedOutputPath()
	ws, _, err := zap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", path, err)
	}
	return ws, nil
}

func newEncoder(encoding string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(encoding, "console") {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// parseLevel возвращает info для пустого или неизвестного уровня.
func parseLevel(level string) zapcore.Level {
	if level == "" {
		return zapcore.InfoLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level %q, using info: %v\n", level, err)
		return zapcore.InfoLevel
	}
	return lvl
}
