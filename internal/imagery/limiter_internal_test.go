package imagery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPruneLimiters(t *testing.T) {
	m := NewEditManager(nil, nil, ManagerOptions{RequestsPerMinute: 6000, Burst: 1})

	m.mu.Lock()
	assert.True(t, m.allow("lobby"))
	assert.False(t, m.allow("lobby"))
	m.pruneLimitersLocked()
	assert.Contains(t, m.limiters, "lobby", "exhausted limiter is kept")
	m.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	m.mu.Lock()
	m.pruneLimitersLocked()
	assert.Empty(t, m.limiters)
	assert.True(t, m.allow("lobby"))
	m.mu.Unlock()
}
