// Package configbinder binds the string properties of a job definition to typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// BindProperties decodes props into target, a pointer to a struct with yaml tags.
// Strings are converted to the field types. Fields without a property keep their value,
// so target may carry defaults. Unknown properties are an error.
func BindProperties(props map[string]string, target interface{}) error {
	if len(props) == 0 {
		return nil
	}
	raw := make(map[string]interface{}, len(props))
	for k, v := range props {
		raw[k] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return exception.NewConfigurationError("configbinder", fmt.Sprintf("failed to bind properties to %s", targetType.Name()), err)
	}
	return nil
}
