package recorder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offbynull-go/peernetic"
)

type fakeShuttle struct {
	batches [][]peernetic.Message
}

func (f *fakeShuttle) Send(messages []peernetic.Message) {
	f.batches = append(f.batches, messages)
}

type stepClock struct {
	times []time.Time
	i     int
}

func (c *stepClock) Now() time.Time {
	t := c.times[c.i]
	if c.i < len(c.times)-1 {
		c.i++
	}
	return t
}

func TestRecorderThenReplayer_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")

	self := peernetic.MustAddress("node1")
	clock := &stepClock{times: []time.Time{
		time.Unix(1000, 0),
		time.Unix(1000, 0).Add(50 * time.Millisecond),
	}}

	rec, err := Create(path, self, peernetic.GobSerializer{}, clock)
	require.NoError(t, err)

	dst1, err := self.AppendElements("worker", "1")
	require.NoError(t, err)
	m1, err := peernetic.NewMessage(peernetic.MustAddress("peerA"), dst1, "hello")
	require.NoError(t, err)
	rec.Send([]peernetic.Message{m1})

	dst2, err := self.AppendElements("worker", "2")
	require.NoError(t, err)
	m2, err := peernetic.NewMessage(peernetic.MustAddress("peerB"), dst2, "world")
	require.NoError(t, err)
	rec.Send([]peernetic.Message{m2})

	require.NoError(t, rec.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	out := &fakeShuttle{}
	replayDest := peernetic.MustAddress("replayed")
	rp, err := Open(path, replayDest, out, peernetic.GobSerializer{}, nil)
	require.NoError(t, err)
	defer rp.Close()

	start := time.Now()
	require.NoError(t, rp.Run(context.Background()))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	require.Len(t, out.batches, 2)
	require.Len(t, out.batches[0], 1)
	require.Equal(t, "hello", out.batches[0][0].Payload())
	require.True(t, out.batches[0][0].Destination().Equal(mustAppend(t, replayDest, "worker", "1")))
	require.Len(t, out.batches[1], 1)
	require.Equal(t, "world", out.batches[1][0].Payload())
}

func TestReplayer_ContextCancelStopsRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.rec")

	self := peernetic.MustAddress("node1")
	clock := &stepClock{times: []time.Time{
		time.Unix(2000, 0),
		time.Unix(2000, 0).Add(10 * time.Second),
	}}
	rec, err := Create(path, self, peernetic.GobSerializer{}, clock)
	require.NoError(t, err)

	dst, err := self.AppendElements("x")
	require.NoError(t, err)
	m, err := peernetic.NewMessage(peernetic.MustAddress("peerA"), dst, 1)
	require.NoError(t, err)
	rec.Send([]peernetic.Message{m})
	rec.Send([]peernetic.Message{m})
	require.NoError(t, rec.Close())

	out := &fakeShuttle{}
	rp, err := Open(path, peernetic.MustAddress("replayed"), out, peernetic.GobSerializer{}, nil)
	require.NoError(t, err)
	defer rp.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err = rp.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, out.batches, 1)
}

func mustAppend(t *testing.T, base peernetic.Address, elements ...string) peernetic.Address {
	t.Helper()
	a, err := base.AppendElements(elements...)
	require.NoError(t, err)
	return a
}
