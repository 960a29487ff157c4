package config

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/api/resource"
)

// CustomHooks are the decoder options every configuration is unmarshalled with. viper.DecodeHook replaces rather
// than extends the decode hook, so all hooks are composed into one, including the defaults viper would otherwise use.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		QuantityDecodeHook(),
		LoadDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)),
}

func QuantityDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if t != reflect.TypeOf(resource.Quantity{}) {
			return data, nil
		}
		return resource.ParseQuantity(fmt.Sprintf("%v", data))
	}
}

// LoadDecodeHook lets unsigned integers be written as quantities, so that a load of 2k or 1Mi can be configured
// directly. Fractional quantities are rejected.
func LoadDecodeHook() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Uint64 {
			return data, nil
		}
		q, err := resource.ParseQuantity(data.(string))
		if err != nil {
			return nil, err
		}
		v, ok := q.AsInt64()
		if !ok || v < 0 {
			return nil, fmt.Errorf("%s is not a whole non-negative number", data)
		}
		return uint64(v), nil
	}
}
