package configmap

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/go-barrier/internal/pkg/env"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
	"github.com/keboola/go-barrier/internal/pkg/validator"
)

type SetBy int

const (
	SetByDefault SetBy = iota
	SetByConfigFile
	SetByEnv
	SetByFlag
)

// ConfigWithNormalize is a configuration structure which normalizes its values after binding.
type ConfigWithNormalize interface {
	Normalize()
}

// ConfigWithValidation is a configuration structure with an additional validation, executed after the tags validation.
type ConfigWithValidation interface {
	Validate() error
}

type BindSpec struct {
	// Flags is a parsed FlagSet, generated by the GenerateFlags function from the same structure.
	Flags     *pflag.FlagSet
	Envs      env.Provider
	EnvNaming *env.NamingConvention
	// ConfigFiles are YAML or JSON files, a later file overrides an earlier one.
	ConfigFiles []string
}

// Bind flags and ENVs to the configuration structure, the target must be a pointer.
// Source priority: 1. flag, 2. ENV, 3. config file, 4. current value of the field.
// Returned map contains the source of each configuration key.
func Bind(ctx context.Context, spec BindSpec, target any) (map[string]SetBy, error) {
	value, err := structValue(target)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot bind configuration")
	}
	if !value.CanAddr() {
		return nil, errors.New("cannot bind configuration: target must be a pointer")
	}

	v := viper.New()
	for _, path := range spec.ConfigFiles {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.PrefixErrorf(err, `cannot read config file "%s"`, path)
		}
	}

	setBy := make(map[string]SetBy)
	for _, l := range leaves(visit(value, nil)) {
		setBy[l.Key] = SetByDefault
		if v.InConfig(l.Key) {
			setBy[l.Key] = SetByConfigFile
		}

		if spec.Flags != nil {
			if flag := spec.Flags.Lookup(l.FlagName); flag != nil && flag.Changed {
				if slice, ok := flag.Value.(pflag.SliceValue); ok {
					v.Set(l.Key, slice.GetSlice())
				} else {
					v.Set(l.Key, flag.Value.String())
				}
				setBy[l.Key] = SetByFlag
				continue
			}
		}

		if spec.Envs != nil && spec.EnvNaming != nil {
			if envValue, found := spec.Envs.Lookup(spec.EnvNaming.Replace(l.FlagName)); found && envValue != "" {
				v.Set(l.Key, envValue)
				setBy[l.Key] = SetByEnv
			}
		}
	}

	// Only the set keys are decoded, other fields keep their values
	err = v.Unmarshal(target, func(c *mapstructure.DecoderConfig) {
		c.TagName = configKeyTag
		c.Squash = true
	})
	if err != nil {
		return nil, errors.PrefixError(err, "cannot decode configuration")
	}

	if v, ok := target.(ConfigWithNormalize); ok {
		v.Normalize()
	}

	if err := validator.Validate(ctx, target); err != nil {
		return nil, errors.PrefixError(err, "invalid configuration")
	}

	if v, ok := target.(ConfigWithValidation); ok {
		if err := v.Validate(); err != nil {
			return nil, errors.PrefixError(err, "invalid configuration")
		}
	}

	return setBy, nil
}
