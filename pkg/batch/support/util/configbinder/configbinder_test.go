package configbinder_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/configbinder"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type readerProps struct {
	DBRef    string `yaml:"db_ref"`
	PageSize int    `yaml:"page_size"`
	Verbose  bool   `yaml:"verbose"`
}

func TestBindProperties(t *testing.T) {
	props := readerProps{DBRef: "sample", PageSize: 10}

	err := configbinder.BindProperties(map[string]string{"page_size": "25", "verbose": "true"}, &props)

	require.NoError(t, err)
	assert.Equal(t, readerProps{DBRef: "sample", PageSize: 25, Verbose: true}, props)
}

func TestBindProperties_Empty(t *testing.T) {
	props := readerProps{DBRef: "sample"}

	require.NoError(t, configbinder.BindProperties(nil, &props))
	assert.Equal(t, "sample", props.DBRef)
}

func TestBindProperties_Errors(t *testing.T) {
	for name, in := range map[string]map[string]string{
		"not a number":     {"page_size": "ten"},
		"unknown property": {"pagesize": "10"},
	} {
		t.Run(name, func(t *testing.T) {
			err := configbinder.BindProperties(in, &readerProps{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrConfiguration))
			assert.Contains(t, err.Error(), "readerProps")
		})
	}
}
