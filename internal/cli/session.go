package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"story-weaver/internal/controller"
	"story-weaver/internal/models"
	"story-weaver/internal/service"

	"go.uber.org/zap"
)

// StoryController - то, что сессии нужно от контроллера.
type StoryController interface {
	Start(ctx context.Context, premise, genre, tone string, image *models.ImagePart) error
	Advance(ctx context.Context, choice string) error
	Restart()
	Status() controller.Status
}

// Session - интерактивная игра в терминале поверх контроллера.
type Session struct {
	ctrl          StoryController
	prompter      Prompter
	out           io.Writer
	imageMaxBytes int
	logger        *zap.Logger
}

// NewSession создает терминальную сессию.
func NewSession(ctrl StoryController, prompter Prompter, out io.Writer, imageMaxBytes int, logger *zap.Logger) *Session {
	return &Session{
		ctrl:          ctrl,
		prompter:      prompter,
		out:           out,
		imageMaxBytes: imageMaxBytes,
		logger:        logger.Named("PlaySession"),
	}
}

// Run крутит цикл до выхода пользователя или отмены ctx.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, titleStyle.Render("Story Weaver"))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		status := s.ctrl.Status()
		var err error
		if status.State == controller.StateIdle {
			err = s.startStory(ctx)
		} else {
			err = s.step(ctx, status)
		}
		if errors.Is(err, ErrAborted) || errors.Is(err, errQuit) {
			fmt.Fprintln(s.out, mutedStyle.Render("Goodbye."))
			return nil
		}
		if err != nil {
			return err
		}
	}
}

var errQuit = errors.New("quit")

func (s *Session) startStory(ctx context.Context) error {
	form, err := s.prompter.AskStart()
	if err != nil {
		return err
	}

	var image *models.ImagePart
	if form.ImagePath != "" {
		image, err = service.EncodeImageFile(form.ImagePath, s.imageMaxBytes)
		if err != nil {
			s.logger.Warn("Image rejected", zap.String("path", form.ImagePath), zap.Error(err))
			s.printError(userMessage(err, s.ctrl.Status()))
			return nil
		}
	}

	fmt.Fprintln(s.out, mutedStyle.Render("Weaving your story..."))
	if err := s.ctrl.Start(ctx, form.Premise, form.Genre, form.Tone, image); err != nil {
		s.printError(userMessage(err, s.ctrl.Status()))
	}
	return nil
}

func (s *Session) step(ctx context.Context, status controller.Status) error {
	s.render(status)

	picked, err := s.prompter.AskChoice(status.Choices, status.Ended)
	if err != nil {
		return err
	}
	switch picked.Action {
	case ActionQuit:
		return errQuit
	case ActionRestart:
		s.ctrl.Restart()
		return nil
	}

	fmt.Fprintln(s.out, choiceStyle.Render("> "+picked.Choice))
	if err := s.ctrl.Advance(ctx, picked.Choice); err != nil {
		s.printError(userMessage(err, s.ctrl.Status()))
	}
	return nil
}

func (s *Session) render(status controller.Status) {
	if status.Tree == nil {
		return
	}
	node, err := status.Tree.Node(status.CurrentID)
	if err != nil {
		s.logger.Error("Current node is missing", zap.Error(err))
		return
	}
	fmt.Fprintln(s.out, status.Tree.Render(status.CurrentID))
	fmt.Fprintln(s.out, segmentStyle.Render(node.StorySegment))
	if status.Ended {
		fmt.Fprintln(s.out, titleStyle.Render("The End"))
	}
}

func (s *Session) printError(msg string) {
	fmt.Fprintln(s.out, errorStyle.Render(msg))
}

func userMessage(err error, status controller.Status) string {
	switch {
	case models.IsGenerationError(err) && status.Message != "":
		return status.Message
	case errors.Is(err, models.ErrImageTooLarge):
		return "Image is too large. Please upload a file under 2MB."
	case errors.Is(err, models.ErrImageEncoding):
		return "Could not process the image file."
	case errors.Is(err, models.ErrInvalidChoice):
		return controller.InvalidChoiceMessage
	default:
		return err.Error()
	}
}
