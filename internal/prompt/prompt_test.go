package prompt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCharacter() Character {
	return Character{
		Name:        "Aria",
		Description: "A wandering bard",
		Persona:     "calm mentor",
		Scenario:    "a quiet tavern",
		Style:       "lyrical",
		Rules:       "never sing off key",
	}
}

func historyOf(n int) []HistoryMessage {
	history := make([]HistoryMessage, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, HistoryMessage{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	return history
}

func TestBuildPromptStackDeterministic(t *testing.T) {
	character := testCharacter()
	character.Examples = []ExamplePair{{User: "hi", Assistant: "hello"}}
	history := historyOf(7)
	config := Config{MaxHistory: 5, IncludeExamples: true}

	first := BuildPromptStack(character, history, "tell me a story", config)
	second := BuildPromptStack(character, history, "tell me a story", config)

	assert.Equal(t, first, second)
}

func TestBuildPromptStackHistoryBound(t *testing.T) {
	cases := []struct {
		historyLen  int
		maxHistory  int
		wantKept    int
		wantTrimmed int
	}{
		{historyLen: 20, maxHistory: 12, wantKept: 12, wantTrimmed: 8},
		{historyLen: 3, maxHistory: 12, wantKept: 3, wantTrimmed: 0},
		{historyLen: 0, maxHistory: 4, wantKept: 0, wantTrimmed: 0},
		{historyLen: 5, maxHistory: 5, wantKept: 5, wantTrimmed: 0},
	}

	for _, tc := range cases {
		out := BuildPromptStack(testCharacter(), historyOf(tc.historyLen), "hello", Config{MaxHistory: tc.maxHistory})

		// system + history + new user message
		assert.Len(t, out.Messages, 1+tc.wantKept+1, "historyLen=%d maxHistory=%d", tc.historyLen, tc.maxHistory)
		assert.Equal(t, tc.wantTrimmed, out.DebugInfo.TrimmedCount)
	}
}

func TestBuildPromptStackRetainsNewestHistory(t *testing.T) {
	history := historyOf(10)
	out := BuildPromptStack(testCharacter(), history, "latest", Config{MaxHistory: 3})

	require.Len(t, out.Messages, 5)
	assert.Equal(t, "turn 7", out.Messages[1].Content)
	assert.Equal(t, "turn 8", out.Messages[2].Content)
	assert.Equal(t, "turn 9", out.Messages[3].Content)
	assert.Equal(t, "latest", out.Messages[4].Content)
}

func TestBuildPromptStackExampleInclusion(t *testing.T) {
	character := testCharacter()
	character.Examples = []ExamplePair{
		{User: "who are you?", Assistant: "a humble bard"},
		{User: "sing", Assistant: "la la la"},
	}

	out := BuildPromptStack(character, nil, "hello", Config{MaxHistory: 10, IncludeExamples: true})
	require.True(t, out.DebugInfo.ExampleIncluded)
	// system + 2 example pairs + new user message
	require.Len(t, out.Messages, 6)
	assert.Equal(t, RoleUser, out.Messages[1].Role)
	assert.Equal(t, "who are you?", out.Messages[1].Content)
	assert.Equal(t, RoleAssistant, out.Messages[2].Role)
	assert.Equal(t, "a humble bard", out.Messages[2].Content)
	assert.Equal(t, "sing", out.Messages[3].Content)

	// Flag off: examples stay out even when the character has them.
	out = BuildPromptStack(character, nil, "hello", Config{MaxHistory: 10})
	assert.False(t, out.DebugInfo.ExampleIncluded)
	assert.Len(t, out.Messages, 2)

	// Flag on but no examples defined: not reported as included.
	out = BuildPromptStack(testCharacter(), nil, "hello", Config{MaxHistory: 10, IncludeExamples: true})
	assert.False(t, out.DebugInfo.ExampleIncluded)
}

func TestBuildPromptStackOrdering(t *testing.T) {
	character := testCharacter()
	character.Examples = []ExamplePair{{User: "a", Assistant: "b"}}
	character.PostHistoryInstructions = "always answer in verse"

	out := BuildPromptStack(character, historyOf(2), "new input", Config{MaxHistory: 10, IncludeExamples: true})

	roles := make([]string, 0, len(out.Messages))
	for _, m := range out.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{
		RoleSystem,    // template
		RoleUser,      // example user
		RoleAssistant, // example assistant
		RoleUser,      // history turn 0
		RoleAssistant, // history turn 1
		RoleUser,      // new input
		RoleSystem,    // post-history instructions
	}, roles)
	assert.Equal(t, "always answer in verse", out.Messages[len(out.Messages)-1].Content)
}

func TestBuildPromptStackPersonalityAliasPreferred(t *testing.T) {
	character := testCharacter()
	character.Personality = "stern teacher"

	out := BuildPromptStack(character, nil, "hi", Config{MaxHistory: 1})
	assert.Contains(t, out.Messages[0].Content, "stern teacher")
	assert.NotContains(t, out.Messages[0].Content, "calm mentor")
}

func TestBuildPromptStackEmptyOptionalFields(t *testing.T) {
	character := Character{Name: "Bare", Persona: "minimal"}

	out := BuildPromptStack(character, nil, "hi", Config{MaxHistory: 1})
	// Template sections are preserved even when empty.
	assert.Contains(t, out.Messages[0].Content, "Description:")
	assert.Contains(t, out.Messages[0].Content, "Scenario:")
	assert.Contains(t, out.Messages[0].Content, "Rules:")
}

func TestBuildPromptStackClampsZeroMaxHistory(t *testing.T) {
	out := BuildPromptStack(testCharacter(), historyOf(5), "hi", Config{MaxHistory: 0})
	// One history turn survives the clamp.
	require.Len(t, out.Messages, 3)
	assert.Equal(t, "turn 4", out.Messages[1].Content)
	assert.Equal(t, 4, out.DebugInfo.TrimmedCount)
}

func TestBuildPromptStackScenario(t *testing.T) {
	// Character with persona, no examples, 20 turns of history, window of 12.
	out := BuildPromptStack(testCharacter(), historyOf(20), "what now?", Config{MaxHistory: 12, IncludeExamples: true})

	assert.Len(t, out.Messages, 14) // 1 system + 12 history + 1 new user
	assert.Equal(t, 8, out.DebugInfo.TrimmedCount)
	assert.False(t, out.DebugInfo.ExampleIncluded)
}
