package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ofisk/loresmith-ai-sub003/internal/workflow"
)

func TestEvictIdle_CancelsAndDropsStaleSessions(t *testing.T) {
	h := &StagingHandler{controllers: make(map[string]*sessionState)}
	now := time.Now()

	var cancelled []string
	h.controllers["camp-1:alice"] = &sessionState{
		controller: workflow.NewController(nil),
		cancel:     func() { cancelled = append(cancelled, "camp-1:alice") },
		lastSeen:   now.Add(-sessionIdleTTL - time.Minute),
	}
	h.controllers["camp-1:bob"] = &sessionState{
		controller: workflow.NewController(nil),
		cancel:     func() { t.Error("active session must not be cancelled") },
		lastSeen:   now,
	}

	h.evictIdle(now)

	assert.Equal(t, []string{"camp-1:alice"}, cancelled, "stale session's watch goroutine released")
	assert.NotContains(t, h.controllers, "camp-1:alice")
	assert.Contains(t, h.controllers, "camp-1:bob")
}

func TestEvictIdle_BoundaryIsNotEvicted(t *testing.T) {
	h := &StagingHandler{controllers: make(map[string]*sessionState)}
	now := time.Now()

	h.controllers["camp-1:carol"] = &sessionState{
		controller: workflow.NewController(nil),
		cancel:     func() { t.Error("session at exactly the TTL must survive") },
		lastSeen:   now.Add(-sessionIdleTTL),
	}

	h.evictIdle(now)

	assert.Contains(t, h.controllers, "camp-1:carol")
}
