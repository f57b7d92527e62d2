package natsfacts

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/natsclient"
	"github.com/c360/factflow/rule"
)

type fakeInjector struct {
	results []rule.Result
	err     error
}

func (f *fakeInjector) ApplyExternalFacts(res rule.Result) error {
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, res)
	return nil
}

func testBridge(t *testing.T, inj Injector) (*Bridge, *fact.Registry) {
	t.Helper()
	reg := fact.NewRegistry()
	reg.MustAllocate("armed")
	reg.MustAllocate("airborne")

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	return NewBridge(BridgeDeps{
		Config:     DefaultConfig(),
		Registry:   reg,
		Injector:   inj,
		NATSClient: client,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), reg
}

func TestInitialize(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)
	require.NoError(t, b.Initialize())
}

func TestInitializeValidation(t *testing.T) {
	inj := &fakeInjector{}

	tests := []struct {
		name   string
		mutate func(*Bridge)
	}{
		{"empty delta subject", func(b *Bridge) { b.config.DeltaSubject = "" }},
		{"nil registry", func(b *Bridge) { b.registry = nil }},
		{"nil injector", func(b *Bridge) { b.injector = nil }},
		{"nil nats client", func(b *Bridge) { b.natsClient = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := testBridge(t, inj)
			tt.mutate(b)
			err := b.Initialize()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestParseDelta(t *testing.T) {
	inj := &fakeInjector{}
	b, reg := testBridge(t, inj)
	armed, _ := reg.Lookup("armed")
	airborne, _ := reg.Lookup("airborne")

	res, err := b.parseDelta([]byte(`{"add": ["armed"], "remove": ["airborne"]}`))
	require.NoError(t, err)
	assert.Equal(t, armed.Vector(), res.Add)
	assert.Equal(t, airborne.Vector(), res.Remove)
}

func TestParseDeltaRejections(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"invalid json", `{"add": `, errors.ErrParsingFailed},
		{"unknown fact", `{"add": ["launched"]}`, errors.ErrUnknownFact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.parseDelta([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHandleDeltaInjects(t *testing.T) {
	inj := &fakeInjector{}
	b, reg := testBridge(t, inj)
	armed, _ := reg.Lookup("armed")

	b.running.Store(true)
	b.handleDelta(context.Background(), []byte(`{"add": ["armed"]}`))

	require.Len(t, inj.results, 1)
	assert.Equal(t, armed.Vector(), inj.results[0].Add)
	assert.Equal(t, int64(1), b.received.Load())
	assert.Equal(t, int64(0), b.rejected.Load())
}

func TestHandleDeltaCountsRejections(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)

	b.running.Store(true)
	b.handleDelta(context.Background(), []byte(`not json`))
	b.handleDelta(context.Background(), []byte(`{"add": ["unknown"]}`))

	assert.Empty(t, inj.results)
	assert.Equal(t, int64(2), b.rejected.Load())
}

func TestHandleDeltaIgnoredWhenStopped(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)

	b.handleDelta(context.Background(), []byte(`{"add": ["armed"]}`))
	assert.Empty(t, inj.results)
	assert.Equal(t, int64(0), b.received.Load())
}

func TestChangeListenerDisabled(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)

	b.config.StateSubject = ""
	assert.Nil(t, b.ChangeListener())

	b.config.StateSubject = "factflow.facts.state"
	assert.NotNil(t, b.ChangeListener())
}

func TestStopIdempotent(t *testing.T) {
	inj := &fakeInjector{}
	b, _ := testBridge(t, inj)

	b.running.Store(true)
	require.NoError(t, b.Stop(0))
	require.NoError(t, b.Stop(0))
	assert.False(t, b.running.Load())
}
