// Package models keeps the list of installed models and the one in use.
package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/offlineai/localchat/core/backend"
	"github.com/offlineai/localchat/core/types"
	"github.com/offlineai/localchat/pkg/xlog"
	"github.com/offlineai/localchat/pkg/xstrings"
	"github.com/robfig/cron/v3"
)

// Fallback is offered when no source reports any model.
var Fallback = []string{"gemma3:4b", "gemma3:12b", "qwen3:4b", "qwen3:14b"}

// Source is one way of listing models. Sources are tried in order.
type Source struct {
	Name    string
	Lister  backend.ModelLister
	Timeout time.Duration
}

// Registry is safe for concurrent use. The active model is persisted to a
// text file so that it survives restarts.
type Registry struct {
	sources  []Source
	filePath string

	mu     sync.RWMutex
	models []string
	active string

	onChange func(models []string, active string)
	cron     *cron.Cron
}

type Option func(*Registry)

// WithChangeHandler registers fn to be called after every refresh and
// every change of the active model.
func WithChangeHandler(fn func(models []string, active string)) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// New lists the models once and selects the last used one when it is
// still installed, the first one otherwise.
func New(ctx context.Context, filePath string, sources []Source, opts ...Option) *Registry {
	r := &Registry{
		sources:  sources,
		filePath: filePath,
	}
	for _, o := range opts {
		o(r)
	}

	models := r.list(ctx)
	last := r.loadLast()

	r.mu.Lock()
	r.models = models
	if last != "" && slices.Contains(models, last) {
		r.active = last
		xlog.Info("Loaded last used model", "model", last)
	} else {
		r.active = models[0]
		xlog.Info("Defaulting to first available model", "model", r.active)
	}
	r.mu.Unlock()

	return r
}

func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.models)
}

func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive switches to name, which must be in the current list.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	if !slices.Contains(r.models, name) {
		r.mu.Unlock()
		return types.NewValidationError("Model '%s' not found in the available list.", name)
	}
	r.active = name
	models := slices.Clone(r.models)
	r.mu.Unlock()

	if err := r.saveLast(name); err != nil {
		xlog.Error("Could not save the last model selection", "error", err)
	}
	xlog.Info("Model changed", "model", name)
	r.notify(models, name)
	return nil
}

// Refresh lists the models again. The active model is kept when it is
// still installed.
func (r *Registry) Refresh(ctx context.Context) []string {
	models := r.list(ctx)

	r.mu.Lock()
	r.models = models
	if !slices.Contains(models, r.active) {
		xlog.Warn("Active model no longer available, switching", "old", r.active, "new", models[0])
		r.active = models[0]
	}
	active := r.active
	r.mu.Unlock()

	r.notify(models, active)
	return slices.Clone(models)
}

// Start refreshes the list on the given cron schedule, e.g. "@every 5m".
// An empty schedule does nothing.
func (r *Registry) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	if r.cron != nil {
		xlog.Warn("Model refresh already started")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("invalid model refresh schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c
	xlog.Info("Model refresh scheduled", "schedule", schedule)
	return nil
}

func (r *Registry) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}

func (r *Registry) list(ctx context.Context) []string {
	for _, s := range r.sources {
		sctx := ctx
		cancel := func() {}
		if s.Timeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, s.Timeout)
		}
		models, err := s.Lister.ListModels(sctx)
		cancel()

		if err != nil {
			xlog.Debug("Model source failed", "source", s.Name, "error", err)
			continue
		}
		if len(models) == 0 {
			xlog.Debug("Model source returned no models", "source", s.Name)
			continue
		}
		return xstrings.Unique(models)
	}

	xlog.Warn("No models found, using the fallback list", "models", Fallback)
	return slices.Clone(Fallback)
}

func (r *Registry) notify(models []string, active string) {
	if r.onChange != nil {
		r.onChange(models, active)
	}
}

func (r *Registry) loadLast() string {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			xlog.Error("Could not read the last model selection", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (r *Registry) saveLast(name string) error {
	os.MkdirAll(filepath.Dir(r.filePath), 0755)
	if err := os.WriteFile(r.filePath, []byte(name), 0644); err != nil {
		return types.NewStorageError(r.filePath, err)
	}
	return nil
}
