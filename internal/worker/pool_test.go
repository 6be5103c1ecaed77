package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitReturnsResult(t *testing.T) {
	p := New(2, 4)
	defer p.Close()

	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSubmitPropagatesError(t *testing.T) {
	p := New(1, 0)
	defer p.Close()

	boom := errors.New("boom")
	f, err := Submit(context.Background(), p, func(ctx context.Context) (string, error) {
		return "", boom
	})
	require.NoError(t, err)
	_, err = f.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPanicBecomesError(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		panic("bad index")
	})
	require.NoError(t, err)
	_, err = f.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad index")

	// The worker survives the panic.
	f, err = Submit(context.Background(), p, func(ctx context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestConcurrencyIsBounded(t *testing.T) {
	const size = 3
	p := New(size, 16)
	defer p.Close()

	var running, peak atomic.Int32
	futures := make([]*Future[struct{}], 0, 12)
	for i := 0; i < 12; i++ {
		f, err := Submit(context.Background(), p, func(ctx context.Context) (struct{}, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		_, err := f.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(size))
}

func TestSubmitBlocksUntilContextEnds(t *testing.T) {
	p := New(1, 0)
	defer p.Close()

	release := make(chan struct{})
	first, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Submit(ctx, p, func(ctx context.Context) (int, error) { return 2, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	_, err = first.Wait(context.Background())
	require.NoError(t, err)
}

func TestWaitHonoursContext(t *testing.T) {
	p := New(1, 0)
	defer p.Close()

	release := make(chan struct{})
	f, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-f.Done()
}

func TestSkipsJobsWhoseContextEnded(t *testing.T) {
	p := New(1, 1)
	defer p.Close()

	release := make(chan struct{})
	blocker, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued, err := Submit(ctx, p, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 0, nil
	})
	require.NoError(t, err)
	cancel()
	close(release)

	_, err = blocker.Wait(context.Background())
	require.NoError(t, err)
	<-queued.Done()
	_, err = queued.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran.Load())
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(1, 8)

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return 0, nil
		})
		require.NoError(t, err)
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(5), done.Load())

	_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, p.Close())
}

func TestShutdownReleasesBlockedSubmit(t *testing.T) {
	p := New(1, 0)

	release := make(chan struct{})
	blocker, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	submitErr := make(chan error, 1)
	go func() {
		_, err := Submit(context.Background(), p, func(ctx context.Context) (int, error) { return 1, nil })
		submitErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-submitErr:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("Submit still blocked after Shutdown")
	}

	close(release)
	_, err = blocker.Wait(context.Background())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
