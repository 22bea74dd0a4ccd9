package story

import (
	"fmt"
	"strings"

	"story-weaver/internal/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// Edge - связь родитель -> ребенок для визуализации.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ViewNode - узел в модели для визуализации.
type ViewNode struct {
	ID         string   `json:"id"`
	ParentID   *string  `json:"parentId"`
	ChoiceText string   `json:"choiceText"`
	Segment    string   `json:"storySegment"`
	Depth      int      `json:"depth"`
	Frontier   bool     `json:"frontier"`
	Choices    []string `json:"choices,omitempty"`
	Current    bool     `json:"current"`
}

// Snapshot - модель только для чтения: узлы в порядке обхода, ребра и текущая позиция.
type Snapshot struct {
	Nodes     []ViewNode `json:"nodes"`
	Edges     []Edge     `json:"edges"`
	CurrentID string     `json:"currentId"`
}

// Edges возвращает ребра в порядке обхода, дети - в порядке создания.
func (t *Tree) Edges() []Edge {
	edges := make([]Edge, 0, len(t.nodes)-1)
	t.Walk(func(n models.StoryNode, _ int) {
		for _, child := range n.Children {
			edges = append(edges, Edge{From: n.ID, To: child})
		}
	})
	return edges
}

// Snapshot строит модель для визуализации с подсвеченным currentID.
func (t *Tree) Snapshot(currentID string) Snapshot {
	snap := Snapshot{
		Nodes:     make([]ViewNode, 0, len(t.nodes)),
		Edges:     t.Edges(),
		CurrentID: currentID,
	}
	t.Walk(func(n models.StoryNode, depth int) {
		_, frontier := t.choices[n.ID]
		snap.Nodes = append(snap.Nodes, ViewNode{
			ID:         n.ID,
			ParentID:   n.ParentID,
			ChoiceText: n.ChoiceText,
			Segment:    n.StorySegment,
			Depth:      depth,
			Frontier:   frontier,
			Choices:    t.PendingChoices(n.ID),
			Current:    n.ID == currentID,
		})
	})
	return snap
}

var (
	currentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#818CF8"))
	nodeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	endingStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#718096"))
	enumStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A5568"))
	maxLabelRunes = 48
)

// Render рисует дерево в терминале. Текущий узел помечается звездочкой.
func (t *Tree) Render(currentID string) string {
	var build func(id string) *tree.Tree
	build = func(id string) *tree.Tree {
		n := t.nodes[id]
		node := tree.Root(t.label(id, currentID)).
			Enumerator(tree.RoundedEnumerator).
			EnumeratorStyle(enumStyle)
		for _, child := range n.Children {
			c := t.nodes[child]
			if len(c.Children) == 0 {
				node.Child(t.label(child, currentID))
				continue
			}
			node.Child(build(child))
		}
		return node
	}
	return build(models.RootNodeID).String()
}

func (t *Tree) label(id, currentID string) string {
	n := t.nodes[id]
	text := truncate(n.ChoiceText, maxLabelRunes)
	choices, pending := t.choices[id]
	switch {
	case id == currentID:
		return currentStyle.Render("* " + text)
	case pending && len(choices) == 0:
		return endingStyle.Render(fmt.Sprintf("%s (The End)", text))
	default:
		return nodeStyle.Render(text)
	}
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
