package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKnowledgeEntry(t *testing.T) {
	now := time.Now().UTC()
	entry := NewKnowledgeEntry("id-1", "What are your hours?", "9am to 5pm", KnowledgeSourceManual, now)

	assert.Equal(t, "id-1", entry.ID)
	assert.Equal(t, "What are your hours?", entry.Question)
	assert.Equal(t, "9am to 5pm", entry.Answer)
	assert.Equal(t, KnowledgeSourceManual, entry.Source)
	assert.Equal(t, now, entry.CreatedAt)
	assert.Equal(t, now, entry.UpdatedAt)
}

func TestValidateKnowledgeEntry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid entry", func(t *testing.T) {
		entry := NewKnowledgeEntry("id-1", "Q", "A", KnowledgeSourceSupervisor, now)
		require.NoError(t, ValidateKnowledgeEntry(entry))
	})

	t.Run("nil entry", func(t *testing.T) {
		assert.Error(t, ValidateKnowledgeEntry(nil))
	})

	t.Run("missing id", func(t *testing.T) {
		entry := NewKnowledgeEntry("", "Q", "A", KnowledgeSourceManual, now)
		assert.Error(t, ValidateKnowledgeEntry(entry))
	})

	t.Run("empty question", func(t *testing.T) {
		entry := NewKnowledgeEntry("id-1", "   ", "A", KnowledgeSourceManual, now)
		assert.ErrorIs(t, ValidateKnowledgeEntry(entry), ErrEmptyQuestion)
	})

	t.Run("empty answer", func(t *testing.T) {
		entry := NewKnowledgeEntry("id-1", "Q", "", KnowledgeSourceManual, now)
		assert.ErrorIs(t, ValidateKnowledgeEntry(entry), ErrEmptyAnswer)
	})

	t.Run("invalid source", func(t *testing.T) {
		entry := NewKnowledgeEntry("id-1", "Q", "A", KnowledgeSource("webhook"), now)
		assert.ErrorIs(t, ValidateKnowledgeEntry(entry), ErrInvalidKnowledgeSource)
	})
}
