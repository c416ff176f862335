package core

import (
	"context"
	"fmt"

	"mofkobot/pkg/logx"
)

// PluginManager owns registered plugins and drives their lifecycle in
// registration order (reverse order on stop).
type PluginManager struct {
	log     logx.Logger
	plugins []Plugin
	started []Plugin
	byName  map[string]Plugin
}

func NewPluginManager(log logx.Logger) *PluginManager {
	return &PluginManager{
		log:    log,
		byName: make(map[string]Plugin),
	}
}

func (m *PluginManager) Register(p Plugin) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin with empty name")
	}
	if _, dup := m.byName[name]; dup {
		return fmt.Errorf("duplicate plugin %q", name)
	}
	m.byName[name] = p
	m.plugins = append(m.plugins, p)
	return nil
}

func (m *PluginManager) Get(name string) (Plugin, bool) {
	p, ok := m.byName[name]
	return p, ok
}

func (m *PluginManager) All() []Plugin { return m.plugins }

// InitAll initializes every plugin. deps is copied per plugin with the
// plugin's own raw config block and a plugin-scoped logger filled in.
// Plugins turned off in the config are dropped before init and never start.
func (m *PluginManager) InitAll(ctx context.Context, deps Deps, rawFor func(name string) []byte, enabledFor func(name string) bool) error {
	kept := m.plugins[:0]
	for _, p := range m.plugins {
		if enabledFor != nil && !enabledFor(p.Name()) {
			delete(m.byName, p.Name())
			m.log.Info("plugin disabled by config", logx.String("plugin", p.Name()))
			continue
		}
		kept = append(kept, p)
	}
	m.plugins = kept

	for _, p := range m.plugins {
		d := deps
		d.Log = deps.Log.Named(p.Name())
		if rawFor != nil {
			d.Raw = rawFor(p.Name())
		}
		if err := p.Init(ctx, d); err != nil {
			return fmt.Errorf("init plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// StartAll starts plugins in order. On failure the already-started ones are
// stopped in reverse before returning the error.
func (m *PluginManager) StartAll(ctx context.Context) error {
	for _, p := range m.plugins {
		if err := p.Start(ctx); err != nil {
			m.StopAll(ctx)
			return fmt.Errorf("start plugin %s: %w", p.Name(), err)
		}
		m.started = append(m.started, p)
		m.log.Info("plugin started", logx.String("plugin", p.Name()))
	}
	return nil
}

func (m *PluginManager) StopAll(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		p := m.started[i]
		if err := p.Stop(ctx); err != nil {
			m.log.Warn("plugin stop failed", logx.String("plugin", p.Name()), logx.Err(err))
		}
	}
	m.started = nil
}
