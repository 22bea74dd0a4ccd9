package mocks

import (
	"context"

	"story-weaver/internal/models"
	"story-weaver/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockNarrator is a mock type for the Narrator type
type MockNarrator struct {
	mock.Mock
}

// GenerateInitialStory provides a mock function with given fields: ctx, req
func (_m *MockNarrator) GenerateInitialStory(ctx context.Context, req service.InitialRequest) (*models.Segment, error) {
	ret := _m.Called(ctx, req)

	var r0 *models.Segment
	if rf, ok := ret.Get(0).(func(context.Context, service.InitialRequest) *models.Segment); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Segment)
	}

	return r0, ret.Error(1)
}

// GenerateStorySegment provides a mock function with given fields: ctx, history, currentChoice
func (_m *MockNarrator) GenerateStorySegment(ctx context.Context, history []models.HistoryEntry, currentChoice string) (*models.Segment, error) {
	ret := _m.Called(ctx, history, currentChoice)

	var r0 *models.Segment
	if rf, ok := ret.Get(0).(func(context.Context, []models.HistoryEntry, string) *models.Segment); ok {
		r0 = rf(ctx, history, currentChoice)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Segment)
	}

	return r0, ret.Error(1)
}

// NewMockNarrator creates a new instance of MockNarrator. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockNarrator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockNarrator {
	m := &MockNarrator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.Narrator = (*MockNarrator)(nil)
