package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantOK      bool
		wantID      string
		wantContent string
	}{
		{
			name:        "new wrapper",
			payload:     `{"new": {"id": "c-1", "content": "login is broken", "post_id": "p-1"}}`,
			wantOK:      true,
			wantID:      "c-1",
			wantContent: "login is broken",
		},
		{
			name:        "record wrapper",
			payload:     `{"record": {"id": "c-2", "content": "please add dark mode"}}`,
			wantOK:      true,
			wantID:      "c-2",
			wantContent: "please add dark mode",
		},
		{
			name:        "top-level fields",
			payload:     `{"id": "c-3", "content": "how do I export?"}`,
			wantOK:      true,
			wantID:      "c-3",
			wantContent: "how do I export?",
		},
		{
			name:        "nested data.new",
			payload:     `{"data": {"new": {"id": "c-4", "content": "crash on save"}}}`,
			wantOK:      true,
			wantID:      "c-4",
			wantContent: "crash on save",
		},
		{
			name:        "nested data.record",
			payload:     `{"data": {"record": {"id": "c-5", "content": "slow search"}}}`,
			wantOK:      true,
			wantID:      "c-5",
			wantContent: "slow search",
		},
		{
			name:        "oversize fallback without content",
			payload:     `{"new": {"id": "c-6"}}`,
			wantOK:      true,
			wantID:      "c-6",
			wantContent: "",
		},
		{
			name:    "wrapper takes priority over top-level fields",
			payload: `{"id": "outer", "new": {"id": "inner", "content": "x"}}`,
			wantOK:  true,
			wantID:  "inner",
		},
		{
			name:    "missing id",
			payload: `{"new": {"content": "no id here"}}`,
			wantOK:  false,
		},
		{
			name:    "empty object",
			payload: `{}`,
			wantOK:  false,
		},
		{
			name:    "not json",
			payload: `this is not json`,
			wantOK:  false,
		},
		{
			name:    "json array",
			payload: `[1, 2, 3]`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := Decode([]byte(tt.payload))
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantID, event.ID)
			if tt.wantContent != "" || tt.name == "oversize fallback without content" {
				assert.Equal(t, tt.wantContent, event.Content)
			}
			assert.JSONEq(t, tt.payload, string(event.Raw))
		})
	}
}
