package entry

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	valid atomic.Bool
	n     int
}

func (v *testValue) IsValid() bool { return v.valid.Load() }

type sleepyLoader struct {
	delay   time.Duration
	invokes atomic.Int64
	fail    bool
}

func (l *sleepyLoader) Load(ctx context.Context, key string) (*testValue, error) {
	l.invokes.Add(1)
	time.Sleep(l.delay)
	if l.fail {
		return nil, errors.New("boom")
	}
	v := &testValue{n: 1}
	v.valid.Store(true)
	return v, nil
}

func (l *sleepyLoader) CreateEmptyValue(key string) *testValue { return &testValue{} }

func TestLoadIfNotValid_ExactlyOnceUnderConcurrency(t *testing.T) {
	loader := &sleepyLoader{delay: 10 * time.Millisecond}
	var promoted atomic.Int64
	e := New[string, *testValue]("k", loader.CreateEmptyValue("k"), loader, func(k string, _ *Entry[string, *testValue]) {
		promoted.Add(1)
	}, nil)

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			require.NoError(t, e.LoadIfNotValid(context.Background()))
		}()
	}
	wg.Wait()

	require.True(t, e.Value().IsValid())
	require.Equal(t, int64(1), loader.invokes.Load())
	require.Equal(t, int64(1), promoted.Load())
	require.Equal(t, int64(math.MaxInt64), e.EnqueueFrame())
}

func TestLoadIfNotValid_AlreadyValidIsNoop(t *testing.T) {
	loader := &sleepyLoader{}
	v := loader.CreateEmptyValue("k")
	v.valid.Store(true)
	e := New[string, *testValue]("k", v, loader, nil, nil)

	require.NoError(t, e.LoadIfNotValid(context.Background()))
	require.Equal(t, int64(0), loader.invokes.Load())
}

func TestLoadIfNotValid_FailurePropagatesAndStaysInvalid(t *testing.T) {
	loader := &sleepyLoader{fail: true}
	e := New[string, *testValue]("k", loader.CreateEmptyValue("k"), loader, nil, nil)

	err := e.LoadIfNotValid(context.Background())
	require.ErrorIs(t, err, ErrLoaderFailed)
	require.False(t, e.Value().IsValid())

	// a subsequent call retries the loader rather than caching the failure.
	loader.fail = false
	require.NoError(t, e.LoadIfNotValid(context.Background()))
	require.True(t, e.Value().IsValid())
	require.Equal(t, int64(2), loader.invokes.Load())
}

func TestWait_ReturnsOnValid(t *testing.T) {
	loader := &sleepyLoader{delay: 5 * time.Millisecond}
	e := New[string, *testValue]("k", loader.CreateEmptyValue("k"), loader, nil, nil)

	go func() { _ = e.LoadIfNotValid(context.Background()) }()

	e.Wait(context.Background(), time.Second)
	require.True(t, e.Value().IsValid())
}

func TestWait_TimesOutWithoutBecomingValid(t *testing.T) {
	loader := &sleepyLoader{delay: time.Hour}
	mock := clock.NewMock()
	e := New[string, *testValue]("k", loader.CreateEmptyValue("k"), loader, nil, mock)

	go func() { _ = e.LoadIfNotValid(context.Background()) }()

	done := make(chan struct{})
	go func() {
		e.Wait(context.Background(), 10*time.Millisecond)
		close(done)
	}()
	// let Wait register its timer on the mock clock before advancing it;
	// a timer created after the Add would be due 10ms past the new mock time.
	time.Sleep(10 * time.Millisecond)
	mock.Add(10 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return once the mock clock passed its timeout")
	}
	require.False(t, e.Value().IsValid())
}

func TestCompareAndSetEnqueueFrame_ExactlyOneWinnerPerFrame(t *testing.T) {
	e := New[string, *testValue]("k", &testValue{}, &sleepyLoader{}, nil, nil)

	const n = 32
	var wins atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if e.CompareAndSetEnqueueFrame(1) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), wins.Load())
	require.Equal(t, int64(1), e.EnqueueFrame())

	require.False(t, e.CompareAndSetEnqueueFrame(1))
	require.True(t, e.CompareAndSetEnqueueFrame(2))
}

func TestSetEnqueueFrame(t *testing.T) {
	e := New[string, *testValue]("k", &testValue{}, &sleepyLoader{}, nil, nil)
	require.Equal(t, int64(-1), e.EnqueueFrame())
	e.SetEnqueueFrame(3)
	require.Equal(t, int64(3), e.EnqueueFrame())
}
