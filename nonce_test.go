package queueworker

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGate(t *testing.T) {
	t.Run("admit once per id", func(t *testing.T) {
		gate := NewMemoryGate(0, 0)
		assert.True(t, gate.Admit("a"))
		assert.False(t, gate.Admit("a"))
		assert.True(t, gate.Admit("b"))
	})

	t.Run("complete keeps the id blocked", func(t *testing.T) {
		gate := NewMemoryGate(0, 0)
		require.True(t, gate.Admit("a"))
		gate.Complete("a")
		assert.False(t, gate.Admit("a"))
	})

	t.Run("failed keeps the id blocked until eviction", func(t *testing.T) {
		gate := NewMemoryGate(0, 0)
		require.True(t, gate.Admit("a"))
		gate.Failed("a")
		assert.False(t, gate.Admit("a"))
	})

	t.Run("transitions on unseen ids are safe", func(t *testing.T) {
		gate := NewMemoryGate(0, 0)
		gate.Complete("never-admitted")
		gate.Failed("also-never-admitted")
		assert.False(t, gate.Admit("never-admitted"))
	})

	t.Run("concurrent admission yields one winner", func(t *testing.T) {
		gate := NewMemoryGate(0, 0)
		var wg sync.WaitGroup
		var mu sync.Mutex
		admitted := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if gate.Admit("contested") {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, admitted)
	})
}

func TestRedisGate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	t.Run("admit once per id", func(t *testing.T) {
		gate := NewRedisGate(client, "t1:", time.Minute)
		assert.True(t, gate.Admit("a"))
		assert.False(t, gate.Admit("a"))
	})

	t.Run("prefixes isolate gates", func(t *testing.T) {
		first := NewRedisGate(client, "t2:", time.Minute)
		second := NewRedisGate(client, "t3:", time.Minute)
		assert.True(t, first.Admit("a"))
		assert.True(t, second.Admit("a"))
	})

	t.Run("failed id readmitted after ttl", func(t *testing.T) {
		gate := NewRedisGate(client, "t4:", time.Minute)
		require.True(t, gate.Admit("a"))
		gate.Failed("a")
		assert.False(t, gate.Admit("a"))

		mr.FastForward(2 * time.Minute)
		assert.True(t, gate.Admit("a"))
	})

	t.Run("admits when redis is down", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		t.Cleanup(func() { _ = broken.Close() })
		gate := NewRedisGate(broken, "t5:", time.Minute)
		assert.True(t, gate.Admit("a"))
		assert.True(t, gate.Admit("a"))
	})
}
