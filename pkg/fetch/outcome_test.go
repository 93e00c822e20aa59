package fetch

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOutcomeRow(t *testing.T) {
	o := Outcome{
		PaymentID:         "123",
		OrderID:           "456",
		ExternalReference: "ref-1",
		HTTPStatus:        200,
	}

	row := o.Row()
	want := []string{"123", "456", "ref-1", "200", ""}

	if len(row) != len(Fields()) {
		t.Fatalf("Row has %d cells, want %d", len(row), len(Fields()))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("Row[%d] = %q, want %q", i, row[i], want[i])
		}
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"number", json.Number("123456789"), "123456789"},
		{"decimal", json.Number("1.25"), "1.25"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stringify(tt.in); got != tt.want {
				t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAPIMessage(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"message", map[string]any{"message": "not found"}, "not found"},
		{"error", map[string]any{"error": "bad token"}, "bad token"},
		{"cause", map[string]any{"cause": "expired"}, "expired"},
		{"message_wins", map[string]any{"message": "m", "error": "e"}, "m"},
		{"empty_message_falls_through", map[string]any{"message": "", "error": "e"}, "e"},
		{"none", map[string]any{"status": json.Number("404")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apiMessage(tt.body); got != tt.want {
				t.Errorf("apiMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("x", 2*maxBodyExcerpt)

	if got := excerpt(long); len(got) != maxBodyExcerpt {
		t.Errorf("excerpt length = %d, want %d", len(got), maxBodyExcerpt)
	}
	if got := excerpt("short"); got != "short" {
		t.Errorf("excerpt(short) = %q, want unchanged", got)
	}
}
