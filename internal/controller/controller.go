package controller

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"story-weaver/internal/models"
	"story-weaver/internal/service"
	"story-weaver/internal/story"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// State - состояние контроллера истории.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateActive    State = "active"
	StateAdvancing State = "advancing"
)

// Сообщения, которые показываются пользователю при ошибках генерации.
const (
	StartFailedMessage   = "Failed to start the story. Please check your API key and try again."
	AdvanceFailedMessage = "Failed to continue the story. Please try another path or restart."
	InvalidChoiceMessage = "That choice is not available at this point of the story."
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_weaver_controller_transitions_total",
			Help: "Total number of story controller operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	treeNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "story_weaver_tree_nodes",
			Help: "Number of nodes in the most recently committed story tree.",
		},
	)
)

// Status - согласованный снимок состояния контроллера.
// Tree неизменяемый, его можно читать без блокировок.
// Seq растёт с каждым применённым изменением: снимок с большим Seq новее.
type Status struct {
	Seq        uint64      `json:"seq"`
	State      State       `json:"state"`
	CurrentID  string      `json:"currentId,omitempty"`
	Choices    []string    `json:"choices"`
	Ended      bool        `json:"ended"`
	Generation uint64      `json:"generation"`
	Message    string      `json:"message,omitempty"`
	LastError  error       `json:"-"`
	Tree       *story.Tree `json:"-"`
}

// Observer получает статус после каждого применённого изменения дерева и после рестарта.
// Снимки приходят по возрастанию Seq, устаревшие не доставляются.
type Observer func(Status)

// Option настраивает контроллер.
type Option func(*Controller)

// WithTreeOptions передаёт опции в story.CreateRoot (например, генератор id для тестов).
func WithTreeOptions(opts ...story.Option) Option {
	return func(c *Controller) {
		c.treeOpts = append(c.treeOpts, opts...)
	}
}

// Controller ведёт одну историю: хранит дерево и текущую позицию,
// запрашивает у рассказчика новые фрагменты и применяет их к дереву.
// Одновременно выполняется не больше одного запроса генерации.
type Controller struct {
	narrator service.Narrator
	logger   *zap.Logger
	treeOpts []story.Option

	mu         sync.Mutex
	state      State
	tree       *story.Tree
	currentID  string
	generation uint64
	lastErr    error
	message    string
	seq        uint64

	observersMu sync.Mutex
	observers   map[int]Observer
	nextObsID   int

	// notifyMu упорядочивает доставку: снимок не старше lastNotified отбрасывается
	notifyMu     sync.Mutex
	lastNotified uint64
}

// New создает контроллер в состоянии Idle.
func New(narrator service.Narrator, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		narrator:  narrator,
		logger:    logger.Named("StoryController"),
		state:     StateIdle,
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start начинает новую историю. Допустим только из Idle.
// При ошибке генерации контроллер возвращается в Idle, дерево не создаётся.
func (c *Controller) Start(ctx context.Context, premise, genre, tone string, image *models.ImagePart) error {
	log := c.logger.With(zap.String("operation", "start"), zap.String("genre", genre), zap.String("tone", tone))

	if strings.TrimSpace(premise) == "" {
		transitionsTotal.WithLabelValues("start", "invalid_input").Inc()
		return fmt.Errorf("%w: premise is empty", models.ErrInvalidInput)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("start", "invalid_state").Inc()
		log.Warn("Start rejected", zap.String("state", string(state)))
		return fmt.Errorf("%w: cannot start while %s", models.ErrInvalidState, state)
	}
	c.state = StateStarting
	c.lastErr = nil
	c.message = ""
	gen := c.generation
	c.mu.Unlock()

	seg, err := c.narrator.GenerateInitialStory(ctx, service.InitialRequest{
		Premise: premise,
		Genre:   genre,
		Tone:    tone,
		Image:   image,
	})

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("start", "stale").Inc()
		log.Info("Discarding initial segment for a restarted story", zap.Uint64("generation", gen))
		return models.ErrStaleResponse
	}
	if err != nil {
		c.state = StateIdle
		c.lastErr = err
		c.message = StartFailedMessage
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("start", "failed").Inc()
		log.Error("Failed to start story", zap.Error(err))
		return err
	}

	c.tree = story.CreateRoot(premise, seg.StorySegment, seg.Choices, c.treeOpts...)
	c.currentID = c.tree.Root().ID
	c.state = StateActive
	c.seq++
	status := c.statusLocked()
	c.mu.Unlock()

	transitionsTotal.WithLabelValues("start", "success").Inc()
	treeNodes.Set(float64(status.Tree.Len()))
	log.Info("Story started", zap.Int("choices", len(seg.Choices)))
	c.notify(status)
	return nil
}

// Advance продолжает историю выбранным вариантом. Допустим только из Active
// и только для варианта из списка текущей позиции. При ошибке генерации
// позиция и дерево не меняются.
func (c *Controller) Advance(ctx context.Context, choice string) error {
	log := c.logger.With(zap.String("operation", "advance"), zap.String("choice", choice))

	c.mu.Lock()
	if c.state != StateActive {
		state := c.state
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "invalid_state").Inc()
		log.Warn("Advance rejected", zap.String("state", string(state)))
		return fmt.Errorf("%w: cannot advance while %s", models.ErrInvalidState, state)
	}
	pending := c.tree.PendingChoices(c.currentID)
	if !slices.Contains(pending, choice) {
		c.lastErr = models.ErrInvalidChoice
		c.message = InvalidChoiceMessage
		current := c.currentID
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "invalid_choice").Inc()
		log.Warn("Choice is not pending", zap.String("node_id", current), zap.Strings("pending", pending))
		return fmt.Errorf("%w: %q", models.ErrInvalidChoice, choice)
	}
	history, err := c.tree.History(c.currentID)
	if err != nil {
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "internal").Inc()
		log.Error("Current position is missing from the tree", zap.Error(err))
		return err
	}
	c.state = StateAdvancing
	c.lastErr = nil
	c.message = ""
	gen := c.generation
	parentID := c.currentID
	c.mu.Unlock()

	seg, err := c.narrator.GenerateStorySegment(ctx, history, choice)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "stale").Inc()
		log.Info("Discarding segment for a restarted story", zap.Uint64("generation", gen))
		return models.ErrStaleResponse
	}
	if err != nil {
		c.state = StateActive
		c.lastErr = err
		c.message = AdvanceFailedMessage
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "failed").Inc()
		log.Error("Failed to continue story", zap.String("node_id", parentID), zap.Error(err))
		return err
	}

	next, newID, err := c.tree.AppendChild(parentID, choice, seg.StorySegment, seg.Choices)
	if err != nil {
		c.state = StateActive
		c.lastErr = err
		c.message = AdvanceFailedMessage
		c.mu.Unlock()
		transitionsTotal.WithLabelValues("advance", "internal").Inc()
		log.Error("Failed to append node", zap.String("parent_id", parentID), zap.Error(err))
		return err
	}
	c.tree = next
	c.currentID = newID
	c.state = StateActive
	c.seq++
	status := c.statusLocked()
	c.mu.Unlock()

	transitionsTotal.WithLabelValues("advance", "success").Inc()
	treeNodes.Set(float64(next.Len()))
	log.Info("Story advanced", zap.String("node_id", newID), zap.Int("choices", len(seg.Choices)), zap.Bool("ended", len(seg.Choices) == 0))
	c.notify(status)
	return nil
}

// Restart сбрасывает историю в Idle из любого состояния.
// Ответы на запросы, отправленные до рестарта, будут отброшены.
func (c *Controller) Restart() {
	c.mu.Lock()
	c.generation++
	c.state = StateIdle
	c.tree = nil
	c.currentID = ""
	c.lastErr = nil
	c.message = ""
	c.seq++
	status := c.statusLocked()
	c.mu.Unlock()

	transitionsTotal.WithLabelValues("restart", "success").Inc()
	treeNodes.Set(0)
	c.logger.Info("Story restarted", zap.Uint64("generation", status.Generation))
	c.notify(status)
}

// Status возвращает текущий снимок состояния.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// History возвращает пары (выбор, фрагмент) от корня до текущей позиции.
func (c *Controller) History() ([]models.HistoryEntry, error) {
	c.mu.Lock()
	tree, current := c.tree, c.currentID
	c.mu.Unlock()

	if tree == nil {
		return nil, fmt.Errorf("%w: no story has been started", models.ErrInvalidState)
	}
	return tree.History(current)
}

// Subscribe регистрирует наблюдателя. Возвращает функцию отписки.
// Наблюдатель вызывается синхронно и не должен вызывать Start, Advance или Restart.
func (c *Controller) Subscribe(fn Observer) (unsubscribe func()) {
	c.observersMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn
	c.observersMu.Unlock()

	return func() {
		c.observersMu.Lock()
		delete(c.observers, id)
		c.observersMu.Unlock()
	}
}

func (c *Controller) notify(status Status) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if status.Seq <= c.lastNotified {
		c.logger.Debug("Dropping outdated status", zap.Uint64("seq", status.Seq), zap.Uint64("last_seq", c.lastNotified))
		return
	}
	c.lastNotified = status.Seq

	c.observersMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.observersMu.Unlock()

	for _, fn := range observers {
		fn(status)
	}
}

func (c *Controller) statusLocked() Status {
	s := Status{
		Seq:        c.seq,
		State:      c.state,
		CurrentID:  c.currentID,
		Choices:    []string{},
		Generation: c.generation,
		Message:    c.message,
		LastError:  c.lastErr,
		Tree:       c.tree,
	}
	if c.tree != nil {
		s.Choices = c.tree.PendingChoices(c.currentID)
		s.Ended = len(s.Choices) == 0
	}
	return s
}
