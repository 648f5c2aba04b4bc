package mocks

import (
	"context"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/stretchr/testify/mock"
)

// MockRunManager is a mock implementation of the API's run manager
type MockRunManager struct {
	mock.Mock
}

// StartRun mocks starting a crawl run
func (m *MockRunManager) StartRun(ctx context.Context, cfg crawler.CrawlConfig) (*runs.Run, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*runs.Run), args.Error(1)
}

// GetRun mocks fetching a run snapshot
func (m *MockRunManager) GetRun(id string) (*runs.Run, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*runs.Run), args.Error(1)
}

// Results mocks paging through a run's results
func (m *MockRunManager) Results(id string, offset, limit int) ([]crawler.PageResult, error) {
	args := m.Called(id, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]crawler.PageResult), args.Error(1)
}

// ListRuns mocks listing runs
func (m *MockRunManager) ListRuns() []runs.Run {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]runs.Run)
}

// CancelRun mocks cancelling a run
func (m *MockRunManager) CancelRun(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// ActiveRuns mocks counting unfinished runs
func (m *MockRunManager) ActiveRuns() int {
	args := m.Called()
	return args.Int(0)
}
