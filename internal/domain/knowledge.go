package domain

import (
	"fmt"
	"strings"
	"time"
)

// KnowledgeSource identifies how a knowledge entry entered the system
type KnowledgeSource string

const (
	KnowledgeSourceManual     KnowledgeSource = "manual"
	KnowledgeSourceSupervisor KnowledgeSource = "supervisor"
	KnowledgeSourceImport     KnowledgeSource = "import"
)

// KnowledgeEntry represents a question/answer pair in the knowledge base.
// Questions are stored case-sensitively but matched case-insensitively;
// no two entries may share the same question value.
type KnowledgeEntry struct {
	ID        string
	Question  string
	Answer    string
	Source    KnowledgeSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewKnowledgeEntry creates a new KnowledgeEntry instance
func NewKnowledgeEntry(id, question, answer string, source KnowledgeSource, createdAt time.Time) *KnowledgeEntry {
	return &KnowledgeEntry{
		ID:        id,
		Question:  question,
		Answer:    answer,
		Source:    source,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidateKnowledgeEntry validates a KnowledgeEntry instance
func ValidateKnowledgeEntry(k *KnowledgeEntry) error {
	if k == nil {
		return fmt.Errorf("knowledge entry cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge entry ID is required")
	}

	if strings.TrimSpace(k.Question) == "" {
		return ErrEmptyQuestion
	}

	if strings.TrimSpace(k.Answer) == "" {
		return ErrEmptyAnswer
	}

	if !isValidKnowledgeSource(k.Source) {
		return ErrInvalidKnowledgeSource
	}

	return nil
}

// isValidKnowledgeSource checks if a KnowledgeSource is valid
func isValidKnowledgeSource(s KnowledgeSource) bool {
	switch s {
	case KnowledgeSourceManual, KnowledgeSourceSupervisor, KnowledgeSourceImport:
		return true
	}
	return false
}
