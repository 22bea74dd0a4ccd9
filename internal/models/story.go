package models

// RootNodeID - зарезервированный идентификатор корневого узла истории.
const RootNodeID = "root"

// StoryNode представляет одно состояние ветвящейся истории.
// После создания узел не меняется, кроме добавления детей.
type StoryNode struct {
	ID           string   `json:"id"`
	ParentID     *string  `json:"parentId"`     // nil только у корня
	StorySegment string   `json:"storySegment"` // Текст, сгенерированный AI для этого узла
	ChoiceText   string   `json:"choiceText"`   // Выбор пользователя (у корня - исходная завязка)
	Children     []string `json:"children"`     // ID детей в порядке создания
}

// IsRoot возвращает true для корневого узла.
func (n *StoryNode) IsRoot() bool {
	return n.ParentID == nil
}

// Segment - структурированный ответ рассказчика: текст и варианты продолжения.
// Пустой Choices означает концовку ветки.
type Segment struct {
	StorySegment string   `json:"storySegment" validate:"required,notblank"`
	Choices      []string `json:"choices" validate:"max=3,dive,required,notblank"`
}

// ImagePart - встроенное изображение для начальной генерации.
type ImagePart struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 без префикса data:...;base64,
	Raw      []byte `json:"-"`    // Исходные байты (нужны бэкендам, принимающим бинарные данные)
}

// HistoryEntry - пара (выбор, фрагмент) на пути от корня к текущему узлу.
type HistoryEntry struct {
	Choice  string `json:"choice"`
	Segment string `json:"segment"`
}
