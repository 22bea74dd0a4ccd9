package story

import (
	"fmt"

	"story-weaver/internal/models"

	"github.com/google/uuid"
)

// IDGenerator выдает новые уникальные идентификаторы узлов.
type IDGenerator func() string

// NewNodeID - генератор по умолчанию: node-<uuid>. Идентификаторы не повторяются
// даже между разными деревьями и ветками.
func NewNodeID() string {
	return "node-" + uuid.NewString()
}

// Tree - неизменяемый снимок дерева истории.
// Узлы хранятся плоской картой id -> узел, дети ссылаются на id, а не на указатели.
// AppendChild не меняет исходное дерево, а возвращает новую версию, поэтому
// читатели всегда видят согласованный снимок.
type Tree struct {
	nodes   map[string]*models.StoryNode
	choices map[string][]string // Ожидающие выборы, есть только у фронтира
	newID   IDGenerator
}

// Option настраивает дерево при создании.
type Option func(*Tree)

// WithIDGenerator подменяет генератор идентификаторов (используется в тестах).
func WithIDGenerator(gen IDGenerator) Option {
	return func(t *Tree) {
		if gen != nil {
			t.newID = gen
		}
	}
}

// CreateRoot создает дерево из одного корневого узла.
// Пустой initialChoices допустим и означает, что история закончилась сразу.
func CreateRoot(premiseText, initialSegment string, initialChoices []string, opts ...Option) *Tree {
	t := &Tree{
		nodes: map[string]*models.StoryNode{
			models.RootNodeID: {
				ID:           models.RootNodeID,
				ParentID:     nil,
				StorySegment: initialSegment,
				ChoiceText:   premiseText,
				Children:     []string{},
			},
		},
		choices: map[string][]string{
			models.RootNodeID: cloneStrings(initialChoices),
		},
		newID: NewNodeID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AppendChild добавляет к parentID новый узел и возвращает новую версию дерева.
// Ожидающие выборы родителя удаляются, новый узел получает newChoices.
// При ошибке исходное дерево не меняется.
func (t *Tree) AppendChild(parentID, choiceTextUsed, newSegment string, newChoices []string) (*Tree, string, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return t, "", fmt.Errorf("%w: parent %q", models.ErrNotFound, parentID)
	}

	newID := t.newID()
	if _, exists := t.nodes[newID]; exists || newID == "" {
		return t, "", fmt.Errorf("%w: generated node id %q is not unique", models.ErrInvalidState, newID)
	}

	next := &Tree{
		nodes:   make(map[string]*models.StoryNode, len(t.nodes)+1),
		choices: make(map[string][]string, len(t.choices)+1),
		newID:   t.newID,
	}
	for id, n := range t.nodes {
		next.nodes[id] = n
	}
	for id, c := range t.choices {
		if id != parentID {
			next.choices[id] = c
		}
	}

	// Родителя копируем: старый снимок должен остаться прежним
	updatedParent := *parent
	updatedParent.Children = append(cloneStrings(parent.Children), newID)
	next.nodes[parentID] = &updatedParent

	pid := parentID
	next.nodes[newID] = &models.StoryNode{
		ID:           newID,
		ParentID:     &pid,
		StorySegment: newSegment,
		ChoiceText:   choiceTextUsed,
		Children:     []string{},
	}
	next.choices[newID] = cloneStrings(newChoices)

	return next, newID, nil
}

// PathToRoot возвращает узлы от корня до nodeID включительно.
func (t *Tree) PathToRoot(nodeID string) ([]models.StoryNode, error) {
	if _, ok := t.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrNotFound, nodeID)
	}

	var path []models.StoryNode
	for id := nodeID; ; {
		n, ok := t.nodes[id]
		if !ok {
			// Разрыв цепочки parentId - нарушение инварианта связности
			return nil, fmt.Errorf("%w: broken parent link at %q", models.ErrNotFound, id)
		}
		path = append(path, copyNode(n))
		if n.ParentID == nil {
			break
		}
		id = *n.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// History возвращает пары (выбор, фрагмент) на пути к nodeID в хронологическом порядке.
func (t *Tree) History(nodeID string) ([]models.HistoryEntry, error) {
	path, err := t.PathToRoot(nodeID)
	if err != nil {
		return nil, err
	}
	history := make([]models.HistoryEntry, 0, len(path))
	for _, n := range path {
		history = append(history, models.HistoryEntry{Choice: n.ChoiceText, Segment: n.StorySegment})
	}
	return history, nil
}

// PendingChoices возвращает выборы узла. Пустой результат - узел уже пройден,
// это концовка, либо узла нет.
func (t *Tree) PendingChoices(nodeID string) []string {
	return cloneStrings(t.choices[nodeID])
}

// HasPending сообщает, является ли узел фронтиром (у него есть запись выборов, даже пустая).
func (t *Tree) HasPending(nodeID string) bool {
	_, ok := t.choices[nodeID]
	return ok
}

// Node возвращает копию узла.
func (t *Tree) Node(nodeID string) (models.StoryNode, error) {
	n, ok := t.nodes[nodeID]
	if !ok {
		return models.StoryNode{}, fmt.Errorf("%w: %q", models.ErrNotFound, nodeID)
	}
	return copyNode(n), nil
}

// Root возвращает корневой узел.
func (t *Tree) Root() models.StoryNode {
	return copyNode(t.nodes[models.RootNodeID])
}

// Len - количество узлов.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Nodes возвращает копию карты узлов.
func (t *Tree) Nodes() map[string]models.StoryNode {
	out := make(map[string]models.StoryNode, len(t.nodes))
	for id, n := range t.nodes {
		out[id] = copyNode(n)
	}
	return out
}

// Frontier возвращает id узлов, у которых есть запись ожидающих выборов.
func (t *Tree) Frontier() []string {
	ids := make([]string, 0, len(t.choices))
	t.Walk(func(n models.StoryNode, _ int) {
		if _, ok := t.choices[n.ID]; ok {
			ids = append(ids, n.ID)
		}
	})
	return ids
}

// Walk обходит дерево в глубину от корня в порядке детей, передавая глубину узла.
func (t *Tree) Walk(fn func(n models.StoryNode, depth int)) {
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		fn(copyNode(n), depth)
		for _, child := range n.Children {
			visit(child, depth+1)
		}
	}
	visit(models.RootNodeID, 0)
}

func copyNode(n *models.StoryNode) models.StoryNode {
	c := *n
	c.Children = cloneStrings(n.Children)
	if n.ParentID != nil {
		pid := *n.ParentID
		c.ParentID = &pid
	}
	return c
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
