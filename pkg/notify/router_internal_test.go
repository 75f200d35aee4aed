package notify

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiredDedupMarkersAreSwept(t *testing.T) {
	logger := zerolog.Nop()
	r := NewRouter(Options{Logger: &logger, DedupWindow: 20 * time.Millisecond})
	t.Cleanup(func() { _ = r.Close() })

	for _, title := range []string{"a", "b", "c"} {
		_, ok := r.Add(LevelInfo, title, "")
		require.True(t, ok)
	}
	assert.Equal(t, 3, r.dedup.ItemCount())

	time.Sleep(40 * time.Millisecond)
	_, ok := r.Add(LevelInfo, "d", "")
	require.True(t, ok)
	assert.Equal(t, 1, r.dedup.ItemCount(), "only the live marker remains")
}
