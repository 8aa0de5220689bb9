package telemetry

import (
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/straja-ai/magika-go/internal/redact"
)

// Scan attribute keys understood by SafeAttributes.
const (
	AttrSource = "magika.source"
	AttrSize   = "magika.size"
	AttrOrigin = "magika.origin"
)

const (
	maxStringAttr = 512
	maxExtLen     = 16
)

var denyKeys = []string{
	"content",
	"body",
	"bytes",
	"features",
	"authorization",
	"api_key",
	"token",
	"secret",
}

// SafeAttributes converts scan attributes into OTEL attributes. Raw source
// names never leave the process: magika.source is reduced to its scheme and
// extension, and magika.size additionally gets a coarse size class so
// dashboards can group without high-cardinality values.
func SafeAttributes(values map[string]interface{}) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	var attrs []attribute.KeyValue
	for k, v := range values {
		switch k {
		case AttrSource:
			if name, ok := v.(string); ok {
				attrs = append(attrs, sourceAttributes(name)...)
			}
			continue
		case AttrSize:
			if n, ok := toInt64(v); ok {
				attrs = append(attrs, attribute.Int64(AttrSize, n), attribute.String("magika.size_class", sizeClass(n)))
			}
			continue
		}
		if denied(k) {
			continue
		}
		if kv, ok := genericAttribute(k, v); ok {
			attrs = append(attrs, kv)
		}
	}
	return attrs
}

func denied(key string) bool {
	lk := strings.ToLower(key)
	for _, bad := range denyKeys {
		if strings.Contains(lk, bad) {
			return true
		}
	}
	return false
}

func genericAttribute(k string, v interface{}) (attribute.KeyValue, bool) {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringAttr {
			return attribute.KeyValue{}, false
		}
		return attribute.String(k, redact.String(val)), true
	case bool:
		return attribute.Bool(k, val), true
	case int:
		return attribute.Int(k, val), true
	case int64:
		return attribute.Int64(k, val), true
	case float64:
		return attribute.Float64(k, val), true
	case []string:
		if len(val) > 32 {
			val = val[:32]
		}
		return attribute.StringSlice(k, val), true
	}
	return attribute.KeyValue{}, false
}

// sourceAttributes keeps the storage kind and the file extension of name.
func sourceAttributes(name string) []attribute.KeyValue {
	kind := "local"
	if strings.HasPrefix(name, "s3://") {
		kind = "s3"
	}
	attrs := []attribute.KeyValue{attribute.String("magika.source.kind", kind)}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.ReplaceAll(name, "\\", "/")), "."))
	if ext != "" && len(ext) <= maxExtLen {
		attrs = append(attrs, attribute.String("magika.source.ext", ext))
	}
	return attrs
}

func sizeClass(n int64) string {
	switch {
	case n <= 0:
		return "empty"
	case n < 4<<10:
		return "lt_4k"
	case n < 1<<20:
		return "lt_1m"
	case n < 64<<20:
		return "lt_64m"
	default:
		return "ge_64m"
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
