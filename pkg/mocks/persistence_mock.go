package mocks

import (
	"context"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockContactRepository is a mock implementation of persistence.ContactRepository.
type MockContactRepository struct {
	mock.Mock
}

func (m *MockContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	args := m.Called(ctx, contact)

	return args.Error(0)
}

func (m *MockContactRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Contact, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockContactRepository) GetByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error) {
	args := m.Called(ctx, tenantID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Contact), args.Error(1)
}

func (m *MockContactRepository) AddTag(ctx context.Context, tenantID, contactID, tag string) error {
	args := m.Called(ctx, tenantID, contactID, tag)

	return args.Error(0)
}

func (m *MockContactRepository) RemoveTag(ctx context.Context, tenantID, contactID, tag string) error {
	args := m.Called(ctx, tenantID, contactID, tag)

	return args.Error(0)
}

func (m *MockContactRepository) IncrementSent(ctx context.Context, tenantID, contactID string) error {
	args := m.Called(ctx, tenantID, contactID)

	return args.Error(0)
}

func (m *MockContactRepository) SetStatusByEmail(ctx context.Context, tenantID, email string, status models.ContactStatus) error {
	args := m.Called(ctx, tenantID, email, status)

	return args.Error(0)
}
