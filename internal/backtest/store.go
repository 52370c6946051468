package backtest

import (
	"context"
	"sync"

	"github.com/wonny/cbquant/internal/s0_data"
)

// PanelStore holds the current prepared panel.
// Runs keep the panel they started with; Reload swaps in a new one atomically.
type PanelStore struct {
	mu     sync.RWMutex
	panel  *s0_data.Panel
	engine *Engine
	source s0_data.Source
}

// NewPanelStore creates an empty store
func NewPanelStore(engine *Engine, source s0_data.Source) *PanelStore {
	return &PanelStore{engine: engine, source: source}
}

// Get returns the current prepared panel, nil before the first load
func (s *PanelStore) Get() *s0_data.Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panel
}

// Set replaces the prepared panel
func (s *PanelStore) Set(p *s0_data.Panel) {
	s.mu.Lock()
	s.panel = p
	s.mu.Unlock()
}

// Reload loads the source, computes factors and swaps the panel in.
// On failure the previous panel stays in place.
func (s *PanelStore) Reload(ctx context.Context) (*s0_data.Panel, error) {
	raw, err := s0_data.LoadWithLog(ctx, s.source, s.engine.logger)
	if err != nil {
		return nil, err
	}
	prepared, err := s.engine.Prepare(raw)
	if err != nil {
		return nil, err
	}
	s.Set(prepared)
	return prepared, nil
}
