package cli

import (
	"errors"
	"strings"

	"story-weaver/internal/service"

	"github.com/charmbracelet/huh"
)

// Подписи служебных пунктов меню выбора.
const (
	RestartLabel = "↺ Restart"
	QuitLabel    = "✕ Quit"
)

// Action - что пользователь сделал в меню выбора.
type Action int

const (
	ActionAdvance Action = iota
	ActionRestart
	ActionQuit
)

// Pick - ответ меню выбора. Choice заполнен только для ActionAdvance,
// поэтому вариант с текстом служебного пункта остаётся обычным вариантом.
type Pick struct {
	Action Action
	Choice string
}

// значения служебных пунктов в huh.Select, варианты истории идут с индекса 0
const (
	restartOption = -1
	quitOption    = -2
)

// ErrAborted - пользователь закрыл форму.
var ErrAborted = errors.New("aborted by user")

// StartForm - данные формы начала истории.
type StartForm struct {
	Premise   string
	Genre     string
	Tone      string
	ImagePath string
}

// Prompter задаёт вопросы пользователю.
type Prompter interface {
	AskStart() (StartForm, error)
	AskChoice(choices []string, ended bool) (Pick, error)
}

type huhPrompter struct{}

// NewPrompter возвращает интерактивный prompter на базе huh.
func NewPrompter() Prompter {
	return huhPrompter{}
}

func (huhPrompter) AskStart() (StartForm, error) {
	form := StartForm{Genre: service.DefaultGenre, Tone: service.DefaultTone}
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Your story premise").
				Placeholder("A lone robot wakes up in an abandoned library on Mars...").
				Value(&form.Premise).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a premise is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Genre").
				Options(huh.NewOptions(service.Genres...)...).
				Value(&form.Genre),
			huh.NewSelect[string]().
				Title("Tone").
				Options(huh.NewOptions(service.Tones...)...).
				Value(&form.Tone),
			huh.NewInput().
				Title("Inspiration image (optional)").
				Description("Path to a PNG, JPG or WEBP up to 2MB").
				Value(&form.ImagePath),
		),
	).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return StartForm{}, ErrAborted
	}
	form.ImagePath = strings.TrimSpace(form.ImagePath)
	return form, err
}

func (huhPrompter) AskChoice(choices []string, ended bool) (Pick, error) {
	title := "What do you do next?"
	if ended {
		title = "The End"
	}
	options := make([]huh.Option[int], 0, len(choices)+2)
	for i, choice := range choices {
		options = append(options, huh.NewOption(choice, i))
	}
	options = append(options, huh.NewOption(RestartLabel, restartOption), huh.NewOption(QuitLabel, quitOption))

	var picked int
	err := huh.NewSelect[int]().
		Title(title).
		Options(options...).
		Value(&picked).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return Pick{}, ErrAborted
	}
	if err != nil {
		return Pick{}, err
	}
	return pickFromOption(picked, choices), nil
}

func pickFromOption(value int, choices []string) Pick {
	switch {
	case value == restartOption:
		return Pick{Action: ActionRestart}
	case value == quitOption:
		return Pick{Action: ActionQuit}
	case value >= 0 && value < len(choices):
		return Pick{Action: ActionAdvance, Choice: choices[value]}
	default:
		return Pick{Action: ActionQuit}
	}
}
