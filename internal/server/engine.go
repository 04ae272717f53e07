package server

import (
	"container/list"
	"context"
	"sync"

	"github.com/54b3r/pdfrag-go/internal/pipeline"
)

// maxCachedSessions bounds the in-memory session map. Evicted sessions are
// rebuilt from the conversation store when one is configured.
const maxCachedSessions = 1024

// pipelineEngine adapts *pipeline.Pipeline to Engine, keeping live sessions
// in memory. The least recently used session is evicted once the cache is
// full.
type pipelineEngine struct {
	p   *pipeline.Pipeline
	capacity int

	mu       sync.Mutex
	sessions map[string]*list.Element
	// lru holds *pipeline.Session values, most recently used at the front.
	lru *list.List
}

// NewEngine returns an Engine backed by p.
func NewEngine(p *pipeline.Pipeline) Engine {
	return newPipelineEngine(p, maxCachedSessions)
}

func newPipelineEngine(p *pipeline.Pipeline, capacity int) *pipelineEngine {
	return &pipelineEngine{
		p:        p,
		capacity: capacity,
		sessions: make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (e *pipelineEngine) Ready() bool { return e.p.Ready() }

func (e *pipelineEngine) Ingest(ctx context.Context, path string) (pipeline.Stats, error) {
	return e.p.Ingest(ctx, path)
}

func (e *pipelineEngine) Ask(ctx context.Context, sessionID, question string) (pipeline.Answer, string, error) {
	s, err := e.session(ctx, sessionID)
	if err != nil {
		return pipeline.Answer{}, "", err
	}
	ans, err := s.Ask(ctx, question)
	return ans, s.ID(), err
}

// session returns the cached session for id or starts a new one. Starting a
// session may load history from the conversation store, so it runs without
// holding e.mu.
func (e *pipelineEngine) session(ctx context.Context, id string) (*pipeline.Session, error) {
	if s := e.lookup(id); s != nil {
		return s, nil
	}
	s, err := e.p.NewSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.store(s), nil
}

func (e *pipelineEngine) lookup(id string) *pipeline.Session {
	if id == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.sessions[id]
	if !ok {
		return nil
	}
	e.lru.MoveToFront(el)
	return el.Value.(*pipeline.Session)
}

// store caches s and returns the session to use. When a concurrent request
// cached the same id first, s is closed and the cached one wins.
func (e *pipelineEngine) store(s *pipeline.Session) *pipeline.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	if el, ok := e.sessions[s.ID()]; ok {
		s.Close()
		e.lru.MoveToFront(el)
		return el.Value.(*pipeline.Session)
	}
	for e.lru.Len() >= e.capacity {
		oldest := e.lru.Back()
		old := e.lru.Remove(oldest).(*pipeline.Session)
		delete(e.sessions, old.ID())
		old.Close()
	}
	e.sessions[s.ID()] = e.lru.PushFront(s)
	return s
}
