package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickFromOption(t *testing.T) {
	choices := []string{RestartLabel, "Power down"}

	assert.Equal(t, Pick{Action: ActionAdvance, Choice: RestartLabel}, pickFromOption(0, choices))
	assert.Equal(t, Pick{Action: ActionAdvance, Choice: "Power down"}, pickFromOption(1, choices))
	assert.Equal(t, Pick{Action: ActionRestart}, pickFromOption(restartOption, choices))
	assert.Equal(t, Pick{Action: ActionQuit}, pickFromOption(quitOption, choices))
	assert.Equal(t, Pick{Action: ActionQuit}, pickFromOption(5, choices))
}
