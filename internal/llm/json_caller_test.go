package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCallerReturnsContent(t *testing.T) {
	var got Request
	caller := NewJSONCaller(ClientFunc(func(_ context.Context, req Request) (Response, error) {
		got = req
		return Response{Text: `{"response":"olá"}`}, nil
	}), nil)

	assert.Equal(t, `{"response":"olá"}`, caller.Prompt(context.Background(), "pergunta"))
	assert.True(t, got.JSON)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
}

func TestJSONCallerSentinelOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		client Client
	}{
		{"transport error", ClientFunc(func(context.Context, Request) (Response, error) {
			return Response{}, errors.New("status 500")
		})},
		{"empty content", ClientFunc(func(context.Context, Request) (Response, error) {
			return Response{Text: "  "}, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, EmptyObject, NewJSONCaller(tt.client, nil).Prompt(context.Background(), "x"))
		})
	}
}

func TestJSONCallerTimeout(t *testing.T) {
	blocking := ClientFunc(func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	caller := NewJSONCaller(blocking, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	assert.Equal(t, EmptyObject, caller.Prompt(context.Background(), "x"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestJSONCallerNeverRetries(t *testing.T) {
	var calls int32
	caller := NewJSONCaller(ClientFunc(func(context.Context, Request) (Response, error) {
		atomic.AddInt32(&calls, 1)
		return Response{}, errors.New("down")
	}), nil)

	caller.Prompt(context.Background(), "x")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFallbackClient(t *testing.T) {
	failing := ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("primary down")
	})
	ok := ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{Text: "fallback"}, nil
	})

	resp, err := NewFallbackClient(failing, ok, nil).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)

	resp, err = NewFallbackClient(ok, failing, nil).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)

	_, err = NewFallbackClient(failing, nil, nil).Complete(context.Background(), Request{})
	assert.ErrorContains(t, err, "primary down")
}

type recordingObserver struct {
	provider string
	err      error
	calls    int
}

func (r *recordingObserver) ObserveLLMCall(provider string, err error, _ time.Duration) {
	r.provider = provider
	r.err = err
	r.calls++
}

func TestInstrumentedClient(t *testing.T) {
	obs := &recordingObserver{}
	client := NewInstrumentedClient(ClientFunc(func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("boom")
	}), "mistral", obs)

	_, err := client.Complete(context.Background(), Request{})
	assert.Error(t, err)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, "mistral", obs.provider)
	assert.Error(t, obs.err)
}
