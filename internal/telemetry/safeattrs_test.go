package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestSafeAttributesFiltersSecrets(t *testing.T) {
	kvs := map[string]interface{}{
		"content":       "drop",
		"request_body":  "drop",
		"api_key":       "sk-123",
		"token":         "abc",
		"authorization": "secret",
		"long_string":   string(make([]byte, 600)),
		"recursive":     true,
		AttrOrigin:      "cli",
	}

	got := attrMap(SafeAttributes(kvs))
	for _, bad := range []string{"content", "request_body", "api_key", "authorization", "token", "long_string"} {
		if _, ok := got[bad]; ok {
			t.Fatalf("unexpected attribute %s", bad)
		}
	}
	if !got["recursive"].AsBool() {
		t.Fatalf("expected recursive to be kept")
	}
	if got[AttrOrigin].AsString() != "cli" {
		t.Fatalf("expected origin cli, got %q", got[AttrOrigin].AsString())
	}
}

func TestSafeAttributesReducesSource(t *testing.T) {
	tests := []struct {
		source string
		kind   string
		ext    string
	}{
		{source: "/home/alice/secret/report.PDF", kind: "local", ext: "pdf"},
		{source: "s3://bucket/dir/archive.tar.gz", kind: "s3", ext: "gz"},
		{source: "C:\\Users\\bob\\notes.txt", kind: "local", ext: "txt"},
		{source: "upload", kind: "local", ext: ""},
		{source: "/tmp/x.averyveryverylongextension", kind: "local", ext: ""},
	}
	for _, tt := range tests {
		got := attrMap(SafeAttributes(map[string]interface{}{AttrSource: tt.source}))
		if _, ok := got[AttrSource]; ok {
			t.Fatalf("%s: raw source name must not be exported", tt.source)
		}
		if got["magika.source.kind"].AsString() != tt.kind {
			t.Fatalf("%s: kind got %q want %q", tt.source, got["magika.source.kind"].AsString(), tt.kind)
		}
		ext, ok := got["magika.source.ext"]
		if tt.ext == "" {
			if ok {
				t.Fatalf("%s: expected no extension, got %q", tt.source, ext.AsString())
			}
			continue
		}
		if ext.AsString() != tt.ext {
			t.Fatalf("%s: ext got %q want %q", tt.source, ext.AsString(), tt.ext)
		}
	}
}

func TestSafeAttributesSizeClass(t *testing.T) {
	tests := []struct {
		size interface{}
		want string
	}{
		{size: int64(0), want: "empty"},
		{size: 100, want: "lt_4k"},
		{size: int64(4 << 10), want: "lt_1m"},
		{size: int64(5 << 20), want: "lt_64m"},
		{size: int64(64 << 20), want: "ge_64m"},
	}
	for _, tt := range tests {
		got := attrMap(SafeAttributes(map[string]interface{}{AttrSize: tt.size}))
		if got["magika.size_class"].AsString() != tt.want {
			t.Fatalf("size %v: got %q want %q", tt.size, got["magika.size_class"].AsString(), tt.want)
		}
		if _, ok := got[AttrSize]; !ok {
			t.Fatalf("size %v: expected raw size to be kept", tt.size)
		}
	}
}
