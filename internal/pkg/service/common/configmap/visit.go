// Package configmap maps a configuration structure to flags, ENVs and a YAML dump.
//
// Each field tagged by the "configKey" tag is part of the configuration.
// Field can optionally have the "configUsage", "configShorthand" and "sensitive" tags.
// Embedded structs are flattened by the `configKey:",squash"` tag.
package configmap

import (
	"reflect"
	"strings"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const (
	configKeyTag       = "configKey"
	configUsageTag     = "configUsage"
	configShorthandTag = "configShorthand"
	sensitiveTag       = "sensitive"
	tagValuesSeparator = ","
	squashTagValue     = "squash"
)

// leaf is a configuration field with a primitive value.
type leaf struct {
	Key       string
	FlagName  string
	Usage     string
	Shorthand string
	Sensitive bool
	Value     reflect.Value
}

// node is a visited part of the configuration structure, it is used to keep the fields order in the dump.
type node struct {
	Name     string
	Leaf     *leaf
	Children []*node
}

func structValue(v any) (reflect.Value, error) {
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf(`type "%s" is not a struct or a pointer to a struct`, value.Type().String())
	}
	return value, nil
}

// visit walks all configuration fields of the struct, in the definition order.
func visit(value reflect.Value, path []string) []*node {
	var out []*node
	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag, found := field.Tag.Lookup(configKeyTag)
		if !found || !field.IsExported() {
			continue
		}

		name, options, _ := strings.Cut(tag, tagValuesSeparator)
		fieldValue := value.Field(i)
		switch {
		case name == "" && options == squashTagValue && fieldValue.Kind() == reflect.Struct:
			out = append(out, visit(fieldValue, path)...)
		case name == "" || name == "-":
			continue
		case fieldValue.Kind() == reflect.Struct:
			out = append(out, &node{Name: name, Children: visit(fieldValue, append(append([]string(nil), path...), name))})
		default:
			key := strings.Join(append(append([]string(nil), path...), name), ".")
			out = append(out, &node{
				Name: name,
				Leaf: &leaf{
					Key:       key,
					FlagName:  fieldToFlagName(key),
					Usage:     field.Tag.Get(configUsageTag),
					Shorthand: field.Tag.Get(configShorthandTag),
					Sensitive: field.Tag.Get(sensitiveTag) == "true",
					Value:     fieldValue,
				},
			})
		}
	}
	return out
}

func leaves(nodes []*node) []*leaf {
	var out []*leaf
	for _, n := range nodes {
		if n.Leaf != nil {
			out = append(out, n.Leaf)
		} else {
			out = append(out, leaves(n.Children)...)
		}
	}
	return out
}
