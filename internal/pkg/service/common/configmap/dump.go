package configmap

import (
	"fmt"
	"reflect"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const sensitiveMask = "*****"

// DumpYAML encodes the configuration structure to YAML, keys are in the definition order.
// Values of fields tagged by `sensitive:"true"` are masked.
func DumpYAML(v any) ([]byte, error) {
	value, err := structValue(v)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot dump configuration")
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mappingNode(visit(value, nil))}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.PrefixError(err, "cannot dump configuration")
	}
	return out, nil
}

func mappingNode(nodes []*node) *yaml.Node {
	out := &yaml.Node{Kind: yaml.MappingNode}
	for _, n := range nodes {
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: n.Name}
		if n.Leaf == nil {
			out.Content = append(out.Content, key, mappingNode(n.Children))
		} else {
			out.Content = append(out.Content, key, valueNode(n.Leaf))
		}
	}
	return out
}

func valueNode(l *leaf) *yaml.Node {
	v := l.Value
	switch {
	case l.Sensitive && !v.IsZero():
		return scalar("!!str", sensitiveMask)
	case v.Kind() == reflect.Pointer && v.IsNil():
		return scalar("!!null", "null")
	case v.Kind() == reflect.Pointer:
		v = v.Elem()
	}

	if d, ok := v.Interface().(time.Duration); ok {
		return scalar("!!str", d.String())
	}

	switch v.Kind() {
	case reflect.Bool:
		return scalar("!!bool", fmt.Sprint(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalar("!!int", fmt.Sprint(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return scalar("!!int", fmt.Sprint(v.Uint()))
	case reflect.Float32, reflect.Float64:
		return scalar("!!float", fmt.Sprint(v.Float()))
	case reflect.Slice:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for i := 0; i < v.Len(); i++ {
			seq.Content = append(seq.Content, scalar("!!str", fmt.Sprint(v.Index(i).Interface())))
		}
		return seq
	default:
		return scalar("!!str", fmt.Sprint(v.Interface()))
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
