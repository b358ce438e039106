package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func recvWithin(t *testing.T, r *Receiver[string], d time.Duration) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Recv(ctx)
}

func TestNewTopic_ClampsCapacity(t *testing.T) {
	assert.Equal(t, 1, NewTopic[string](0).Capacity())
	assert.Equal(t, 1, NewTopic[string](-5).Capacity())
	assert.Equal(t, 128, NewTopic[string](128).Capacity())
}

func TestTopic_PublishWithoutReceiversIsDiscarded(t *testing.T) {
	topic := NewTopic[string](4)
	assert.Equal(t, 0, topic.Publish("lost"))

	r := topic.Subscribe()
	defer r.Close()
	assert.Equal(t, 1, topic.Publish("kept"))

	msg, err := recvWithin(t, r, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "kept", msg)
}

func TestTopic_LateSubscriberMissesEarlierMessages(t *testing.T) {
	topic := NewTopic[string](8)
	early := topic.Subscribe()
	defer early.Close()
	topic.Publish("before")

	late := topic.Subscribe()
	defer late.Close()
	topic.Publish("after")

	msg, err := recvWithin(t, late, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after", msg)
}

func TestTopic_FanOutInOrder(t *testing.T) {
	topic := NewTopic[string](16)
	receivers := []*Receiver[string]{topic.Subscribe(), topic.Subscribe(), topic.Subscribe()}
	assert.Equal(t, 3, topic.Receivers())

	for i := 0; i < 10; i++ {
		assert.Equal(t, 3, topic.Publish(fmt.Sprintf("m%d", i)))
	}
	for _, r := range receivers {
		for i := 0; i < 10; i++ {
			msg, err := recvWithin(t, r, time.Second)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("m%d", i), msg)
		}
		r.Close()
	}
	assert.Equal(t, 0, topic.Receivers())
}

func TestTopic_LaggedReceiverSkipsForward(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	defer r.Close()

	for i := 0; i < 10; i++ {
		topic.Publish(fmt.Sprintf("m%d", i))
	}

	_, err := recvWithin(t, r, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLagged))
	var lagged *LaggedError
	require.True(t, errors.As(err, &lagged))
	assert.Equal(t, uint64(6), lagged.Skipped)

	for i := 6; i < 10; i++ {
		msg, err := recvWithin(t, r, time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("m%d", i), msg)
	}
}

func TestTopic_LagIsPerReceiver(t *testing.T) {
	topic := NewTopic[string](2)
	fast := topic.Subscribe()
	slow := topic.Subscribe()
	defer fast.Close()
	defer slow.Close()

	for i := 0; i < 4; i++ {
		topic.Publish(fmt.Sprintf("m%d", i))
		msg, err := recvWithin(t, fast, time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("m%d", i), msg)
	}

	_, err := recvWithin(t, slow, time.Second)
	assert.ErrorIs(t, err, ErrLagged)
	msg, err := recvWithin(t, slow, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "m2", msg)
}

func TestTopic_RecvBlocksUntilPublish(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	defer r.Close()

	got := make(chan string, 1)
	go func() {
		msg, err := r.Recv(context.Background())
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("Recv returned before any publish")
	case <-time.After(20 * time.Millisecond):
	}

	topic.Publish("hello")
	select {
	case msg := <-got:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake on publish")
	}
}

func TestTopic_RecvHonoursContext(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	defer r.Close()

	_, err := recvWithin(t, r, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTopic_CloseDrainsThenReportsClosed(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	defer r.Close()

	topic.Publish("a")
	topic.Publish("b")
	topic.Close()
	topic.Close()

	assert.Equal(t, 0, topic.Publish("c"))
	for _, want := range []string{"a", "b"} {
		msg, err := recvWithin(t, r, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, msg)
	}
	_, err := recvWithin(t, r, time.Second)
	assert.ErrorIs(t, err, ErrTopicClosed)
}

func TestTopic_CloseWakesWaiters(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	defer r.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	topic.Close()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTopicClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake waiting receiver")
	}
}

func TestReceiver_CloseIsIdempotent(t *testing.T) {
	topic := NewTopic[string](4)
	r := topic.Subscribe()
	other := topic.Subscribe()
	defer other.Close()

	r.Close()
	r.Close()
	assert.Equal(t, 1, topic.Receivers())

	_, err := recvWithin(t, r, time.Second)
	assert.ErrorIs(t, err, ErrReceiverClosed)

	topic.Publish("still works")
	msg, err := recvWithin(t, other, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "still works", msg)
}

func TestTopic_ConcurrentPublishersShareOneOrder(t *testing.T) {
	const publishers, perPublisher, subscribers = 4, 100, 3
	topic := NewTopic[string](publishers * perPublisher)

	receivers := make([]*Receiver[string], subscribers)
	for i := range receivers {
		receivers[i] = topic.Subscribe()
	}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				topic.Publish(fmt.Sprintf("%d:%03d", p, i))
			}
		}(p)
	}
	wg.Wait()

	var first []string
	for _, r := range receivers {
		got := make([]string, 0, publishers*perPublisher)
		last := map[string]string{}
		for i := 0; i < publishers*perPublisher; i++ {
			msg, err := recvWithin(t, r, time.Second)
			require.NoError(t, err)
			p := msg[:1]
			assert.Less(t, last[p], msg, "per-publisher order must be preserved")
			last[p] = msg
			got = append(got, msg)
		}
		if first == nil {
			first = got
		} else {
			assert.Equal(t, first, got, "all receivers must observe the same order")
		}
		r.Close()
	}
}

// Property-based tests

func TestPropertyReceiverSeesRetainedSuffix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		n := rapid.IntRange(0, 64).Draw(t, "published")

		topic := NewTopic[int](capacity)
		r := topic.Subscribe()
		defer r.Close()
		for i := 0; i < n; i++ {
			topic.Publish(i)
		}

		ctx := context.Background()
		start := 0
		if n > capacity {
			_, err := r.Recv(ctx)
			var lagged *LaggedError
			if !errors.As(err, &lagged) {
				t.Fatalf("expected lag after %d publishes into capacity %d, got %v", n, capacity, err)
			}
			if lagged.Skipped != uint64(n-capacity) {
				t.Fatalf("skipped %d, want %d", lagged.Skipped, n-capacity)
			}
			start = n - capacity
		}
		for want := start; want < n; want++ {
			got, err := r.Recv(ctx)
			if err != nil {
				t.Fatalf("recv %d: %v", want, err)
			}
			if got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
		}
	})
}

func TestPropertyPublishCountsReceivers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		topic := NewTopic[int](4)
		var open []*Receiver[int]
		steps := rapid.IntRange(1, 50).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				open = append(open, topic.Subscribe())
			case 1:
				if len(open) > 0 {
					idx := rapid.IntRange(0, len(open)-1).Draw(t, "idx")
					open[idx].Close()
					open = append(open[:idx], open[idx+1:]...)
				}
			case 2:
				if got := topic.Publish(i); got != len(open) {
					t.Fatalf("Publish returned %d, want %d", got, len(open))
				}
			}
		}
	})
}
