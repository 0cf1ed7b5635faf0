package hydrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type comparison struct {
	Route    string   `json:"route"`
	Segments []int    `json:"segments"`
	Total    int      `json:"total"`
	Tags     []string `json:"tags,omitempty"`
}

var pbContext = Context{Namespace: "comparisons", Key: "any%"}

func TestDecoderCases(t *testing.T) {
	cases := []struct {
		name      string
		input     map[string]any
		opts      []DecoderOption[comparison]
		expect    comparison
		expectErr string
	}{
		{
			name:   "plain payload",
			input:  map[string]any{"route": "any%", "segments": []any{1, 0, 2}, "total": 3},
			expect: comparison{Route: "any%", Segments: []int{1, 0, 2}, Total: 3},
		},
		{
			name:  "renamed key migrates",
			input: map[string]any{"route": "any%", "hits": []any{2, 2}, "total": 4},
			opts: []DecoderOption[comparison]{
				WithPreHook[comparison](RenameKeys(map[string]string{"hits": "segments"})),
			},
			expect: comparison{Route: "any%", Segments: []int{2, 2}, Total: 4},
		},
		{
			name:  "rename keeps existing key",
			input: map[string]any{"hits": []any{9}, "segments": []any{1}},
			opts: []DecoderOption[comparison]{
				WithPreHook[comparison](RenameKeys(map[string]string{"hits": "segments"})),
			},
			expect: comparison{Segments: []int{1}},
		},
		{
			name:  "unknown field rejected",
			input: map[string]any{"route": "any%", "legacy": true},
			opts: []DecoderOption[comparison]{
				WithDisallowUnknownFields[comparison](),
			},
			expectErr: "unknown field",
		},
		{
			name:  "post hook tags record",
			input: map[string]any{"route": "any%"},
			opts: []DecoderOption[comparison]{
				WithPostHook[comparison](tagPostHook),
			},
			expect: comparison{Route: "any%", Tags: []string{"comparisons:any%"}},
		},
		{
			name:  "post hook total",
			input: map[string]any{"segments": []any{1, 2, 3}},
			opts: []DecoderOption[comparison]{
				WithPostHook[comparison](totalPostHook),
			},
			expect: comparison{Segments: []int{1, 2, 3}, Total: 6},
		},
		{
			name:  "pre hook failure",
			input: map[string]any{"route": "any%"},
			opts: []DecoderOption[comparison]{
				WithPreHook[comparison](func(Context, map[string]any) (map[string]any, error) {
					return nil, errors.New("boom")
				}),
			},
			expectErr: "pre-hook for comparisons/any% failed: boom",
		},
		{
			name:  "custom decoder",
			input: map[string]any{"snapshot": `{"route":"low%","total":1}`},
			opts: []DecoderOption[comparison]{
				WithCustomDecoder[comparison](snapshotStringDecoder),
			},
			expect: comparison{Route: "low%", Total: 1},
		},
		{
			name:      "nil payload",
			input:     nil,
			expectErr: "payload is nil",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := NewDecoder(tc.opts...).Decode(pbContext, tc.input)
			if tc.expectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectErr)
				}
				if !strings.Contains(err.Error(), tc.expectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.expect, result) {
				t.Fatalf("decoded mismatch:\nwant: %#v\n got: %#v", tc.expect, result)
			}
		})
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"hits": []any{1}}
	dec := NewDecoder(WithPreHook[comparison](RenameKeys(map[string]string{"hits": "segments"})))
	if _, err := dec.Decode(pbContext, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := input["hits"]; !ok {
		t.Fatalf("input payload was mutated: %#v", input)
	}
}

func TestDecodeJSON(t *testing.T) {
	dec := NewDecoder(WithUseNumber[comparison]())
	got, err := dec.DecodeJSON(pbContext, []byte(`{"route":"any%","total":7}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Route != "any%" || got.Total != 7 {
		t.Fatalf("unexpected result %#v", got)
	}
	if _, err := dec.DecodeJSON(pbContext, []byte(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
}

func tagPostHook(ctx Context, c *comparison) error {
	if c == nil {
		return errors.New("comparison is nil")
	}
	if len(c.Tags) == 0 {
		c.Tags = []string{fmt.Sprintf("%s:%s", ctx.Namespace, ctx.Key)}
	}
	return nil
}

func totalPostHook(_ Context, c *comparison) error {
	c.Total = 0
	for _, v := range c.Segments {
		c.Total += v
	}
	return nil
}

func snapshotStringDecoder(ctx Context, payload map[string]any) (comparison, error) {
	var zero comparison
	raw, ok := payload["snapshot"].(string)
	if !ok || raw == "" {
		return zero, fmt.Errorf("missing snapshot string for %s", ctx)
	}
	var out comparison
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return zero, err
	}
	return out, nil
}
