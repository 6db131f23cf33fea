package dedup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_AdmitOnce(t *testing.T) {
	l := NewMemoryLedger(time.Minute)
	ctx := context.Background()

	ok, err := l.Admit(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Admit(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Admit(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger_WindowExpiry(t *testing.T) {
	l := NewMemoryLedger(20 * time.Millisecond)
	ctx := context.Background()

	ok, _ := l.Admit(ctx, "a")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	// Past the window, the id is admitted again.
	ok, err := l.Admit(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger_Forget(t *testing.T) {
	l := NewMemoryLedger(time.Minute)
	ctx := context.Background()

	ok, _ := l.Admit(ctx, "a")
	require.True(t, ok)

	require.NoError(t, l.Forget(ctx, "a"))

	ok, _ = l.Admit(ctx, "a")
	assert.True(t, ok)
}

func TestMemoryLedger_ConcurrentAdmit(t *testing.T) {
	l := NewMemoryLedger(time.Minute)
	ctx := context.Background()

	const goroutines = 16
	var admitted sync.Map
	var wg sync.WaitGroup

	// All goroutines race on the same id set; each id must be
	// admitted exactly once.
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("msg-%d", i)
				if ok, _ := l.Admit(ctx, id); ok {
					if _, loaded := admitted.LoadOrStore(id, struct{}{}); loaded {
						t.Errorf("id %s admitted twice", id)
					}
				}
			}
		}()
	}
	wg.Wait()

	count := 0
	admitted.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 100, count)
}
