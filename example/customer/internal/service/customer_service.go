// Package service exposes the customers of a city as an item-at-a-time service,
// the shape the adapter reader consumes.
package service

import (
	"context"
	"sync"

	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"github.com/tigerroll/chunkbatch/example/customer/internal/domain"
	"github.com/tigerroll/chunkbatch/example/customer/internal/repository"
)

// CustomerService hands out the customers of one city in id order.
type CustomerService struct {
	repo repository.CustomerRepository
	city string

	mu        sync.Mutex
	customers []domain.Customer
	loaded    bool
	next      int
}

// NewCustomerService creates a CustomerService for the customers of city.
func NewCustomerService(repo repository.CustomerRepository, city string) *CustomerService {
	return &CustomerService{repo: repo, city: city}
}

// GetCustomer returns the next customer. ok is false once every customer has been returned.
// The customers are loaded on the first call.
func (s *CustomerService) GetCustomer(ctx context.Context) (domain.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		customers, err := s.repo.FindAllByCity(ctx, s.city)
		if err != nil {
			return domain.Customer{}, false, err
		}
		s.customers, s.loaded = customers, true
		logger.Debugf("CustomerService: %d customers in '%s'.", len(customers), s.city)
	}
	if s.next >= len(s.customers) {
		return domain.Customer{}, false, nil
	}
	c := s.customers[s.next]
	s.next++
	return c, true, nil
}
