package repository

import (
	"strings"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	reader "github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// CustomerByCityQueryProvider builds the paging query of the customers of one city, ordered by id.
type CustomerByCityQueryProvider struct {
	City string
}

var _ reader.QueryProvider = (*CustomerByCityQueryProvider)(nil)

// NewCustomerByCityQueryProvider creates a CustomerByCityQueryProvider for city.
func NewCustomerByCityQueryProvider(city string) *CustomerByCityQueryProvider {
	return &CustomerByCityQueryProvider{City: city}
}

// Validate implements reader.QueryProvider.
func (p *CustomerByCityQueryProvider) Validate() error {
	if strings.TrimSpace(p.City) == "" {
		return exception.NewConfigurationError("customer_query_provider", "City name is required", nil)
	}
	return nil
}

// CreateQuery implements reader.QueryProvider.
func (p *CustomerByCityQueryProvider) CreateQuery(_ model.JobParameters) (database.Query, error) {
	return ByCity(p.City, "id ASC"), nil
}
