package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	reader "github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"

	"github.com/tigerroll/chunkbatch/example/customer/internal/domain"
	"github.com/tigerroll/chunkbatch/example/customer/internal/service"
)

type mockCustomerRepository struct {
	mock.Mock
}

func (m *mockCustomerRepository) FindByCity(ctx context.Context, city string, page reader.PageRequest) (reader.Page[domain.Customer], error) {
	args := m.Called(ctx, city, page)
	return args.Get(0).(reader.Page[domain.Customer]), args.Error(1)
}

func (m *mockCustomerRepository) FindAllByCity(ctx context.Context, city string) ([]domain.Customer, error) {
	args := m.Called(ctx, city)
	customers, _ := args.Get(0).([]domain.Customer)
	return customers, args.Error(1)
}

func TestCustomerService_GetCustomer(t *testing.T) {
	repo := &mockCustomerRepository{}
	repo.On("FindAllByCity", mock.Anything, "Springfield").
		Return([]domain.Customer{{ID: 1, LastName: "Simpson"}, {ID: 2, LastName: "Bouvier"}}, nil).
		Once()
	svc := service.NewCustomerService(repo, "Springfield")
	ctx := context.Background()

	var got []int64
	for {
		c, ok, err := svc.GetCustomer(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c.ID)
	}
	_, ok, err := svc.GetCustomer(ctx)

	require.NoError(t, err)
	assert.False(t, ok, "the service stays exhausted")
	assert.Equal(t, []int64{1, 2}, got)
	repo.AssertExpectations(t)
}

func TestCustomerService_GetCustomer_RepositoryError(t *testing.T) {
	repo := &mockCustomerRepository{}
	repo.On("FindAllByCity", mock.Anything, "Springfield").Return(nil, errors.New("database is locked"))
	svc := service.NewCustomerService(repo, "Springfield")

	_, ok, err := svc.GetCustomer(context.Background())

	assert.False(t, ok)
	assert.EqualError(t, err, "database is locked")
}
