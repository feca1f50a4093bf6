package indexer

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/repoindex/internal/events"
	"github.com/fyrsmithlabs/repoindex/internal/vectorstore"
)

const testDims = 16

// hashEmbedder maps equal texts to equal vectors.
type hashEmbedder struct {
	mu      sync.Mutex
	calls   int
	queries []string
	fail    error
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, testDims)
	for i := range v {
		h := fnv.New32a()
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		v[i] = float32(h.Sum32()%2000)/1000 - 1
	}
	return v
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	if text == "" {
		return nil, errors.New("empty query")
	}
	return e.vector(text), nil
}

func (e *hashEmbedder) Dimension() int { return testDims }

func newTestService(t *testing.T, cfg Config, opts ...Option) (*Service, *hashEmbedder, vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	emb := &hashEmbedder{}
	svc, err := NewService(cfg, store, emb, opts...)
	require.NoError(t, err)
	return svc, emb, store
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.fail
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}
