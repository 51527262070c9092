package mocks

import (
	"context"

	"invite_mall/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockRiskClassifier struct {
	mock.Mock
}

func (m *MockRiskClassifier) Classify(marks []model.RiskMark) model.RiskAssessment {
	args := m.Called(marks)
	return args.Get(0).(model.RiskAssessment)
}

type MockReservationReleaser struct {
	mock.Mock
}

func (m *MockReservationReleaser) ReleaseReservation(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}
