package service

import (
	"fmt"
	"strings"

	"story-weaver/internal/models"
)

// Жанры и тона, которые предлагает форма начала истории.
var (
	Genres = []string{"Fantasy", "Sci-Fi", "Mystery", "Horror", "Romance", "Comedy"}
	Tones  = []string{"Adventurous", "Dark", "Whimsical", "Suspenseful", "Humorous", "Epic"}
)

const (
	DefaultGenre = "Fantasy"
	DefaultTone  = "Adventurous"
)

// initialSystemPrompt - стилевая директива для первого фрагмента.
func initialSystemPrompt(genre, tone string) string {
	return fmt.Sprintf(`You are an expert storyteller. Your task is to co-write an interactive story with a user.
- The story should be in the "%s" genre.
- The tone should be "%s".
- Always generate a single, compelling paragraph for the story segment.
- After the story segment, provide 2 or 3 distinct, engaging choices for the user to direct the story.
- If the story reaches a natural ending, return an empty list of choices.
- Your entire response MUST be a valid JSON object with exactly two fields: "storySegment" (string) and "choices" (array of strings).`, genre, tone)
}

const continuationSystemPrompt = `You are an expert storyteller continuing an interactive story.
- The story context is provided below.
- The user has just made a choice. Your task is to write the next part of the story based on that choice.
- Generate a single, compelling paragraph that continues the narrative.
- After the story segment, provide 2 or 3 new, distinct choices for the user.
- If the story reaches a natural ending, return an empty list of choices.
- Your entire response MUST be a valid JSON object with exactly two fields: "storySegment" (string) and "choices" (array of strings).`

func initialUserPrompt(premise string, withImage bool) string {
	prompt := fmt.Sprintf("Start a new story based on this premise: %q.", premise)
	if withImage {
		prompt += " Use the provided image as inspiration for the setting or mood."
	}
	return prompt
}

// continuationUserPrompt склеивает историю в единый контекст.
// Первый элемент истории - корень, его выбор - исходная завязка.
func continuationUserPrompt(history []models.HistoryEntry, currentChoice string) string {
	var sb strings.Builder
	sb.WriteString("STORY SO FAR:\n---\n")
	for i, h := range history {
		if i == 0 {
			fmt.Fprintf(&sb, "Premise: %s\n\n%s", h.Choice, h.Segment)
		} else {
			fmt.Fprintf(&sb, "\n\n[Choice: %s]\n%s", h.Choice, h.Segment)
		}
	}
	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "USER'S CHOICE: %q\n\nNow, continue the story.", currentChoice)
	return sb.String()
}
