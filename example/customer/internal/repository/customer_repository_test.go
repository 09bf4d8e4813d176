package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reader "github.com/tigerroll/chunkbatch/pkg/batch/component/step/reader"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/test"

	"github.com/tigerroll/chunkbatch/example/customer/internal/domain"
	"github.com/tigerroll/chunkbatch/example/customer/internal/repository"
)

func seed(t *testing.T) *repository.GormCustomerRepository {
	t.Helper()
	conn := test.NewSQLiteConnection(t, "customers", &domain.Customer{})
	customers := []domain.Customer{
		{ID: 1, FirstName: "Homer", MiddleInitial: "J", LastName: "Simpson", Address: "742 Evergreen Terrace", City: "Springfield", State: "IL", ZipCode: "62704"},
		{ID: 2, FirstName: "Marge", MiddleInitial: "J", LastName: "Bouvier", Address: "742 Evergreen Terrace", City: "Springfield", State: "IL", ZipCode: "62704"},
		{ID: 3, FirstName: "Ned", MiddleInitial: "F", LastName: "Flanders", Address: "744 Evergreen Terrace", City: "Springfield", State: "IL", ZipCode: "62704"},
		{ID: 4, FirstName: "Sideshow", MiddleInitial: "R", LastName: "Bob", Address: "1 Prison Road", City: "Shelbyville", State: "IL", ZipCode: "62565"},
		{ID: 5, FirstName: "Maude", MiddleInitial: "A", LastName: "Flanders", Address: "744 Evergreen Terrace", City: "Springfield", State: "IL", ZipCode: "62704"},
	}
	require.NoError(t, conn.GetGormDB().Create(&customers).Error)
	return repository.NewCustomerRepository(conn)
}

func idsOf(customers []domain.Customer) []int64 {
	ids := make([]int64, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}
	return ids
}

func TestGormCustomerRepository_FindAllByCity(t *testing.T) {
	repo := seed(t)

	customers, err := repo.FindAllByCity(context.Background(), "Springfield")

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 5}, idsOf(customers))
	assert.Equal(t, "Simpson", customers[0].LastName)
}

func TestGormCustomerRepository_FindAllByCity_NoMatch(t *testing.T) {
	repo := seed(t)

	customers, err := repo.FindAllByCity(context.Background(), "Capital City")

	require.NoError(t, err)
	assert.Empty(t, customers)
}

func TestGormCustomerRepository_FindByCity_Pages(t *testing.T) {
	repo := seed(t)
	sort := reader.Sort{Property: "last_name", Direction: reader.Asc}

	first, err := repo.FindByCity(context.Background(), "Springfield", reader.PageRequest{Number: 0, Size: 3, Sort: sort})
	require.NoError(t, err)
	second, err := repo.FindByCity(context.Background(), "Springfield", reader.PageRequest{Number: 1, Size: 3, Sort: sort})
	require.NoError(t, err)

	assert.Equal(t, int64(4), first.TotalElements)
	assert.Equal(t, []int64{2, 3, 5}, idsOf(first.Content), "Flanders ties are ordered by id")
	assert.Equal(t, []int64{1}, idsOf(second.Content))
}

func TestGormCustomerRepository_FindByCity_Descending(t *testing.T) {
	repo := seed(t)

	page, err := repo.FindByCity(context.Background(), "Springfield",
		reader.PageRequest{Size: 10, Sort: reader.Sort{Property: "id", Direction: reader.Desc}})

	require.NoError(t, err)
	assert.Equal(t, []int64{5, 3, 2, 1}, idsOf(page.Content))
}

func TestGormCustomerRepository_FindByCity_RejectsUnknownSortColumn(t *testing.T) {
	repo := seed(t)

	_, err := repo.FindByCity(context.Background(), "Springfield",
		reader.PageRequest{Size: 10, Sort: reader.Sort{Property: "city; DROP TABLE customer", Direction: reader.Asc}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestPagedFinder(t *testing.T) {
	finder := repository.PagedFinder(seed(t))
	page := reader.PageRequest{Size: 2, Sort: reader.Sort{Property: "id", Direction: reader.Asc}}

	t.Run("city argument", func(t *testing.T) {
		got, err := finder(context.Background(), []interface{}{"Springfield"}, page)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, idsOf(got.Content))
		assert.Equal(t, int64(4), got.TotalElements)
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := finder(context.Background(), nil, page)
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})

	t.Run("argument of the wrong type", func(t *testing.T) {
		_, err := finder(context.Background(), []interface{}{42}, page)
		assert.True(t, errors.Is(err, exception.ErrConfiguration))
	})
}
