// Package repository reads customers from the sample database.
package repository

import (
	"context"
	"fmt"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	reader "github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"github.com/tigerroll/chunkbatch/example/customer/internal/domain"
)

const repositoryModule = "customer_repository"

// sortableColumns are the columns a page may be ordered by.
var sortableColumns = map[string]bool{
	"id":         true,
	"first_name": true,
	"last_name":  true,
	"city":       true,
	"state":      true,
	"zip_code":   true,
}

// CustomerRepository queries the customer table.
type CustomerRepository interface {
	// FindByCity returns one page of the customers of city in the order of page.Sort.
	FindByCity(ctx context.Context, city string, page reader.PageRequest) (reader.Page[domain.Customer], error)
	// FindAllByCity returns every customer of city ordered by id.
	FindAllByCity(ctx context.Context, city string) ([]domain.Customer, error)
}

// GormCustomerRepository implements CustomerRepository on a GORM backed connection.
type GormCustomerRepository struct {
	executor database.PageQueryExecutor
}

var _ CustomerRepository = (*GormCustomerRepository)(nil)

// NewCustomerRepository creates a GormCustomerRepository reading through executor.
func NewCustomerRepository(executor database.PageQueryExecutor) *GormCustomerRepository {
	return &GormCustomerRepository{executor: executor}
}

// ByCity returns the query of the customers of city, ordered by orderBy.
func ByCity(city string, orderBy string) database.Query {
	return database.Query{
		Table:   domain.Customer{}.TableName(),
		Where:   "city = ?",
		Args:    []interface{}{city},
		OrderBy: orderBy,
	}
}

// FindByCity implements CustomerRepository.
func (r *GormCustomerRepository) FindByCity(ctx context.Context, city string, page reader.PageRequest) (reader.Page[domain.Customer], error) {
	if !sortableColumns[page.Sort.Property] {
		return reader.Page[domain.Customer]{}, exception.NewConfigurationError(repositoryModule,
			fmt.Sprintf("customers cannot be sorted by '%s'", page.Sort.Property), nil)
	}
	// id breaks ties so that pages do not overlap.
	orderBy := page.Sort.String()
	if page.Sort.Property != "id" {
		orderBy += ", id ASC"
	}
	query := ByCity(city, orderBy)

	var content []domain.Customer
	if err := r.executor.ExecuteQueryPage(ctx, &content, query, page.Offset(), page.Size); err != nil {
		return reader.Page[domain.Customer]{}, fmt.Errorf("failed to load page %d of customers in '%s': %w", page.Number, city, err)
	}
	total, err := r.executor.CountQuery(ctx, &domain.Customer{}, query)
	if err != nil {
		return reader.Page[domain.Customer]{}, fmt.Errorf("failed to count customers in '%s': %w", city, err)
	}
	logger.Debugf("CustomerRepository: page %d of customers in '%s' has %d of %d rows.", page.Number, city, len(content), total)
	return reader.Page[domain.Customer]{Content: content, TotalElements: total}, nil
}

// FindAllByCity implements CustomerRepository.
func (r *GormCustomerRepository) FindAllByCity(ctx context.Context, city string) ([]domain.Customer, error) {
	var customers []domain.Customer
	if err := r.executor.ExecuteQueryPage(ctx, &customers, ByCity(city, "id ASC"), 0, 0); err != nil {
		return nil, fmt.Errorf("failed to load customers in '%s': %w", city, err)
	}
	return customers, nil
}

// PagedFinder adapts FindByCity to a reader.PagedFinder. Its single argument is the city.
func PagedFinder(repo CustomerRepository) reader.PagedFinder[domain.Customer] {
	return func(ctx context.Context, args []interface{}, page reader.PageRequest) (reader.Page[domain.Customer], error) {
		if len(args) != 1 {
			return reader.Page[domain.Customer]{}, exception.NewConfigurationError(repositoryModule,
				fmt.Sprintf("find by city takes 1 argument, got %d", len(args)), nil)
		}
		city, ok := args[0].(string)
		if !ok {
			return reader.Page[domain.Customer]{}, exception.NewConfigurationError(repositoryModule,
				fmt.Sprintf("city must be a string, got %T", args[0]), nil)
		}
		return repo.FindByCity(ctx, city, page)
	}
}
