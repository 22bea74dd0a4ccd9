package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"story-weaver/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// MaxChoices - максимальное количество вариантов, которое рассказчик может предложить.
const MaxChoices = 3

var (
	segmentValidate *validator.Validate
	codeFenceRe     = regexp.MustCompile("```(?:json)?")
)

func init() {
	segmentValidate = validator.New()
	_ = segmentValidate.RegisterValidation("notblank", validators.NotBlank)
}

// rawSegment повторяет models.Segment, но с указателями, чтобы отличить
// отсутствующее поле от пустого значения.
type rawSegment struct {
	StorySegment *string   `json:"storySegment"`
	Choices      *[]string `json:"choices"`
}

// ParseSegment строго декодирует ответ рассказчика в models.Segment.
// Markdown-обвязка ```json снимается. Неизвестные поля, отсутствующие поля,
// пустой текст и больше MaxChoices вариантов - ошибка ErrMalformedResponse.
func ParseSegment(text string) (*models.Segment, error) {
	cleaned := strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", models.ErrMalformedResponse)
	}

	var raw rawSegment
	if err := decodeStrict([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if raw.StorySegment == nil {
		return nil, fmt.Errorf("%w: missing storySegment", models.ErrMalformedResponse)
	}
	if raw.Choices == nil {
		return nil, fmt.Errorf("%w: missing choices", models.ErrMalformedResponse)
	}

	seg := &models.Segment{
		StorySegment: strings.TrimSpace(*raw.StorySegment),
		Choices:      make([]string, 0, len(*raw.Choices)),
	}
	for _, c := range *raw.Choices {
		seg.Choices = append(seg.Choices, strings.TrimSpace(c))
	}
	if err := segmentValidate.Struct(seg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	return seg, nil
}

// decodeStrict декодирует JSON, запрещая неизвестные поля и хвостовые данные.
func decodeStrict(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}

// segmentSchema - описание ответа для structured output.
type segmentSchema struct {
	StorySegment string   `json:"storySegment" description:"The next paragraph of the story. It should be engaging and well-written, continuing from the previous part."`
	Choices      []string `json:"choices" description:"An array of 2 to 3 distinct and interesting choices for the user to pick from to continue the story. Each choice should be a short, actionable phrase."`
}

// SegmentSchema возвращает JSON Schema ответа рассказчика.
func SegmentSchema() (*jsonschema.Definition, error) {
	return jsonschema.GenerateSchemaForType(segmentSchema{})
}

// SegmentSchemaJSON - та же схема в сериализованном виде (для Ollama format).
func SegmentSchemaJSON() (json.RawMessage, error) {
	def, err := SegmentSchema()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal segment schema: %w", err)
	}
	return data, nil
}
