package dedupe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldProcess_OncePerKey(t *testing.T) {
	g := NewSessionGuard()
	k := Key("budget-7", "2026-08")

	assert.True(t, g.ShouldProcess(k), "first call processes")
	assert.False(t, g.ShouldProcess(k), "second call is deduplicated")
	assert.False(t, g.ShouldProcess(k))

	assert.True(t, g.ShouldProcess(Key("budget-7", "2026-09")), "a different period is a different key")
}

func TestBatchOnce(t *testing.T) {
	g := NewSessionGuard()

	assert.True(t, g.BatchOnce())
	assert.False(t, g.BatchOnce())
}

func TestReset(t *testing.T) {
	g := NewSessionGuard()
	k := Key("budget-7", "2026-08")

	g.ShouldProcess(k)
	g.BatchOnce()
	g.Reset()

	assert.True(t, g.ShouldProcess(k), "reset clears the key set")
	assert.True(t, g.BatchOnce(), "reset clears the batch gate")
}

func TestShouldProcess_ConcurrentSingleWinner(t *testing.T) {
	g := NewSessionGuard()
	k := Key("budget-7", "2026-08")

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.ShouldProcess(k) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one caller wins per key")
}

func TestKey_Composite(t *testing.T) {
	assert.Equal(t, "src|2026-08", Key("src", "2026-08"))
}
