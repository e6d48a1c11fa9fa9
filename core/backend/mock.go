package backend

import (
	"context"
)

// MockBackend is a Backend whose behaviour is set per test.
type MockBackend struct {
	NameValue      string
	ChatFunc       func(ctx context.Context, req Request, fn func(string) error) (Usage, error)
	ListModelsFunc func(ctx context.Context) ([]string, error)
}

func (m *MockBackend) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "Mock"
}

func (m *MockBackend) Chat(ctx context.Context, req Request, fn func(string) error) (Usage, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req, fn)
	}
	return Usage{}, nil
}

func (m *MockBackend) ListModels(ctx context.Context) ([]string, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return nil, nil
}

// Fragments returns a ChatFunc that streams the given fragments and then
// reports usage.
func Fragments(usage Usage, fragments ...string) func(context.Context, Request, func(string) error) (Usage, error) {
	return func(ctx context.Context, _ Request, fn func(string) error) (Usage, error) {
		for _, f := range fragments {
			if err := ctx.Err(); err != nil {
				return Usage{}, err
			}
			if err := fn(f); err != nil {
				return Usage{}, err
			}
		}
		return usage, nil
	}
}
