package repository

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"go-quarantine/internal/model"
)

type MockEntryStore struct {
	mock.Mock
}

func (m *MockEntryStore) Create(ctx context.Context, entry model.QuarantineEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockEntryStore) FindByID(ctx context.Context, id string) (model.QuarantineEntry, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.QuarantineEntry), args.Error(1)
}

func (m *MockEntryStore) FindActiveByOriginalPath(ctx context.Context, originalPath string) (model.QuarantineEntry, error) {
	args := m.Called(ctx, originalPath)
	return args.Get(0).(model.QuarantineEntry), args.Error(1)
}

func (m *MockEntryStore) List(ctx context.Context, status model.EntryStatus) ([]model.QuarantineEntry, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QuarantineEntry), args.Error(1)
}

func (m *MockEntryStore) ListQuarantinedBefore(ctx context.Context, cutoff time.Time) ([]model.QuarantineEntry, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QuarantineEntry), args.Error(1)
}

func (m *MockEntryStore) UpdateStatus(ctx context.Context, id string, status model.EntryStatus, changedAt time.Time) error {
	args := m.Called(ctx, id, status, changedAt)
	return args.Error(0)
}

func (m *MockEntryStore) Stats(ctx context.Context) (model.QuarantineStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.QuarantineStats), args.Error(1)
}
