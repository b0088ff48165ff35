package cooldown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/modkit/pkg/cmd"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.UnixMilli(ms)
}

func TestStore_CreateReplaces(t *testing.T) {
	clock := &fakeClock{}
	s := NewStore(WithClock(clock.Now))
	key := Key{Kind: cmd.KindMessage, Command: "pong", CallerID: "u1"}

	s.Create(key, 10*time.Second)
	clock.Set(2000)
	second := s.Create(key, 10*time.Second)

	assert.Equal(t, 1, s.Len())
	active, ok := s.FindActive(key)
	require.True(t, ok)
	assert.Equal(t, second.EndsAt, active.EndsAt)
	assert.Equal(t, time.UnixMilli(12000), active.EndsAt)
}

func TestStore_NeverActiveAfterEnd(t *testing.T) {
	clock := &fakeClock{}
	s := NewStore(WithClock(clock.Now))
	key := Key{Kind: cmd.KindMessage, Command: "pong", CallerID: "u1"}
	s.Create(key, time.Second)

	clock.Set(999)
	_, ok := s.FindActive(key)
	assert.True(t, ok)

	clock.Set(1000)
	_, ok = s.FindActive(key)
	assert.False(t, ok)
}

func TestStore_SweepExpired(t *testing.T) {
	clock := &fakeClock{}
	s := NewStore(WithClock(clock.Now))
	s.Create(Key{Command: "a"}, time.Second)
	s.Create(Key{Command: "b"}, 5*time.Second)

	clock.Set(1500)
	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 1, s.Len())
	_, ok := s.FindActive(Key{Command: "b"})
	assert.True(t, ok)
}

func TestStore_SweepConcurrentWithCreate(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.Create(Key{Command: "c", CallerID: string(rune('a' + i))}, time.Hour)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.SweepExpired()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}

// Cooldown of 10s on pong for u1: runs at t=0, vetoed at t=5000, runs again
// at t=10001.
func TestPrecondition_CooldownTimeline(t *testing.T) {
	clock := &fakeClock{}
	store := NewStore(WithClock(clock.Now))

	runs := 0
	d, err := cmd.NewDescriptor(cmd.Descriptor{
		Kind: cmd.KindMessage, Name: "pong", Cooldown: 10 * time.Second,
		Execute: func(context.Context, *cmd.Invocation, *cmd.Args) error { runs++; return nil },
	})
	require.NoError(t, err)

	reg := cmd.NewRegistry()
	require.NoError(t, reg.Add("m", d))
	reg.SetLive("m", true)
	chain, err := cmd.NewPreconditionChain(Precondition(store))
	require.NoError(t, err)
	p := cmd.NewPipeline(reg, cmd.WithPreconditions(chain))

	invoke := func() *cmd.Outcome {
		out, err := p.Dispatch(context.Background(), cmd.KindMessage, "pong", cmd.NewInvocation("u1", "g1", "c1"))
		require.NoError(t, err)
		return out
	}

	clock.Set(0)
	assert.True(t, invoke().Executed)
	e, ok := store.FindActive(Key{Kind: cmd.KindMessage, Command: "pong", CallerID: "u1", GuildID: "g1"})
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(10000), e.EndsAt)

	clock.Set(5000)
	out := invoke()
	assert.False(t, out.Executed)
	assert.Equal(t, cmd.ReasonCooldown, out.Trigger.Reason)
	assert.Equal(t, time.UnixMilli(10000), out.Trigger.CooldownEndsAt)

	clock.Set(10001)
	assert.True(t, invoke().Executed)
	e, _ = store.FindActive(KeyFor(d, cmd.NewInvocation("u1", "g1", "")))
	assert.Equal(t, time.UnixMilli(20001), e.EndsAt)
	assert.Equal(t, 2, runs)
}

func TestPrecondition_NoCooldownConfigured(t *testing.T) {
	store := NewStore()
	d, err := cmd.NewDescriptor(cmd.Descriptor{Kind: cmd.KindMessage, Name: "free",
		Execute: func(context.Context, *cmd.Invocation, *cmd.Args) error { return nil }})
	require.NoError(t, err)

	p := Precondition(store)
	assert.Nil(t, p.Check(context.Background(), cmd.KindMessage, cmd.NewInvocation("u", "g", "c"), d))
	assert.Equal(t, 0, store.Len())
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := &fakeClock{}
	store := NewStore(WithClock(clock.Now))
	store.Create(Key{Command: "x"}, time.Millisecond)
	clock.Set(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, store, 5*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
