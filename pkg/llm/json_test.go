package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare object",
			content: `{"a":1}`,
			want:    `{"a":1}`,
		},
		{
			name:    "fenced json",
			content: "```json\n{\"a\":1}\n```",
			want:    `{"a":1}`,
		},
		{
			name:    "fenced without language",
			content: "```\n[1,2,3]\n```",
			want:    `[1,2,3]`,
		},
		{
			name:    "surrounding prose",
			content: "Here is the result:\n{\"tables\":[]}\nLet me know if you need more.",
			want:    `{"tables":[]}`,
		},
		{
			name:    "array with prose",
			content: "The questions are: [\"a\",\"b\"] as requested",
			want:    `["a","b"]`,
		},
		{
			name:    "no json at all",
			content: "no structured data here",
			want:    "no structured data here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.content); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}
