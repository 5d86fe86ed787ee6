package replfilter

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single bare key and spaced value",
			in:   "{ name: Super   Table }",
			want: `{"name":"Super   Table"}`,
		},
		{
			name: "nested object with multiple bare keys",
			in:   "{ name:Super   Table, keys:{created_at:int, description: fff}}",
			want: `{"name":"Super   Table","keys":{"created_at":"int","description":"fff"}}`,
		},
		{
			name: "already-quoted segments pass through untouched",
			in:   `{"id":"aaa"}`,
			want: `{"id":"aaa"}`,
		},
		{
			name: "bare numeric value is quoted like any other word",
			in:   "{content: 1}",
			want: `{"content":"1"}`,
		},
		{
			name: "array of objects",
			in:   "[{id: aaa}, {id: bbb}]",
			want: `[{"id":"aaa"},{"id":"bbb"}]`,
		},
		{
			name: "empty object",
			in:   "{}",
			want: `{}`,
		},
		{
			name: "list value membership",
			in:   "{id: [aaa, bbb]}",
			want: `{"id":["aaa","bbb"]}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Canonicalize(tc.in)
			if got != tc.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("{ id: aaa }")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if len(f.Parts()) != 1 {
		t.Fatalf("expected one part, got %d", len(f.Parts()))
	}
	if f.Parts()[0]["id"] != "aaa" {
		t.Errorf("expected id=aaa, got %v", f.Parts()[0]["id"])
	}
}

func TestParseRowData(t *testing.T) {
	data, err := ParseRowData("{id: aaa, content: 1}")
	if err != nil {
		t.Fatalf("ParseRowData: %v", err)
	}
	if data["id"] != "aaa" {
		t.Errorf("expected id=aaa, got %v", data["id"])
	}
}
