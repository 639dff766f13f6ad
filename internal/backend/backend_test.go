package backend

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatgate/internal/session"
)

func TestToMessages(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	}

	messages, err := toMessages(turns)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, ai.RoleSystem, messages[0].Role)
	assert.Equal(t, ai.RoleUser, messages[1].Role)
	assert.Equal(t, ai.RoleModel, messages[2].Role)
	assert.Equal(t, "hello", messages[2].Content[0].Text)
}

func TestToMessagesRejectsUnknownRole(t *testing.T) {
	_, err := toMessages([]session.Turn{{Role: "tool", Content: "x"}})
	assert.Error(t, err)
}

func TestToMessagesPreservesOrder(t *testing.T) {
	turns := make([]session.Turn, 0, 6)
	for i := 0; i < 3; i++ {
		turns = append(turns,
			session.Turn{Role: session.RoleUser, Content: string(rune('a' + i))},
			session.Turn{Role: session.RoleAssistant, Content: string(rune('x' + i))},
		)
	}

	messages, err := toMessages(turns)
	require.NoError(t, err)
	require.Len(t, messages, 6)
	assert.Equal(t, "a", messages[0].Content[0].Text)
	assert.Equal(t, "z", messages[5].Content[0].Text)
}
