// Package types 提供共享类型单元测试
package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: fmt.Errorf("profile %q: %w", "x", ErrNotFound), want: KindNotFound},
		{name: "invalid state", err: fmt.Errorf("wrap: %w", ErrInvalidState), want: KindInvalidState},
		{name: "upstream", err: fmt.Errorf("embed: %w", ErrUpstream), want: KindUpstream},
		{name: "io", err: fmt.Errorf("save: %w", ErrIO), want: KindIO},
		{name: "invalid input", err: ErrInvalidInput, want: KindBadRequest},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromSchema(t *testing.T) {
	doc := &schema.Document{
		ID:       "c1",
		Content:  "Paris is the capital of France.",
		MetaData: map[string]any{"source": "a.txt"},
	}
	doc = doc.WithScore(0.9)

	out := FromSchema([]*schema.Document{doc})
	if len(out) != 1 {
		t.Fatalf("FromSchema() returned %d docs, want 1", len(out))
	}
	if out[0].Score != 0.9 {
		t.Errorf("Score = %v, want 0.9", out[0].Score)
	}
	if out[0].Metadata["source"] != "a.txt" {
		t.Errorf("Metadata[source] = %v, want a.txt", out[0].Metadata["source"])
	}
	if _, ok := out[0].Metadata["_score"]; ok {
		t.Error("internal _score key should be dropped")
	}
}
