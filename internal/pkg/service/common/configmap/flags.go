package configmap

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/pflag"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

func MustGenerateFlags(fs *pflag.FlagSet, v any) {
	if err := GenerateFlags(fs, v); err != nil {
		panic(err)
	}
}

// GenerateFlags generates flags from the provided configuration structure.
// Default value of each flag is the current value of the field.
// Inspired by: https://stackoverflow.com/a/72893101
func GenerateFlags(fs *pflag.FlagSet, v any) error {
	value, err := structValue(v)
	if err != nil {
		return errors.PrefixError(err, "cannot generate flags")
	}

	for _, l := range leaves(visit(value, nil)) {
		if err := addFlag(fs, l); err != nil {
			return err
		}
	}
	return nil
}

func addFlag(fs *pflag.FlagSet, l *leaf) error {
	name, shorthand, usage := l.FlagName, l.Shorthand, l.Usage
	v := l.Value

	if v.Type() == reflect.TypeOf(time.Duration(0)) {
		fs.DurationP(name, shorthand, time.Duration(v.Int()), usage)
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		fs.StringP(name, shorthand, v.String(), usage)
	case reflect.Bool:
		fs.BoolP(name, shorthand, v.Bool(), usage)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		fs.Int64P(name, shorthand, v.Int(), usage)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		fs.Uint64P(name, shorthand, v.Uint(), usage)
	case reflect.Float32, reflect.Float64:
		fs.Float64P(name, shorthand, v.Float(), usage)
	case reflect.Slice:
		values, ok := v.Interface().([]string)
		if !ok {
			return errors.Errorf(`unexpected type "%s" of the field "%s"`, v.Type().String(), l.Key)
		}
		fs.StringSliceP(name, shorthand, values, usage)
	case reflect.Pointer:
		// Optional value, nil pointer is represented by an empty string
		def := ""
		if !v.IsNil() {
			def = fmt.Sprint(v.Elem().Interface())
		}
		fs.StringP(name, shorthand, def, usage)
	default:
		return errors.Errorf(`unexpected type "%s" of the field "%s"`, v.Type().String(), l.Key)
	}
	return nil
}
