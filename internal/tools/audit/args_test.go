package audit

import "testing"

func TestRequireString(t *testing.T) {
	args := map[string]any{"author": "  ops ", "blank": "   ", "num": 3.0}
	if v, err := requireString(args, "author"); err != nil || v != "ops" {
		t.Errorf("requireString(author) = %q, %v", v, err)
	}
	for _, key := range []string{"blank", "num", "missing"} {
		if _, err := requireString(args, key); err == nil {
			t.Errorf("requireString(%s) should fail", key)
		}
	}
}

func TestOptionalInt(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		wantErr bool
	}{
		{"absent", map[string]any{}, 7, false},
		{"nil", map[string]any{"n": nil}, 7, false},
		{"whole", map[string]any{"n": 3.0}, 3, false},
		{"fraction", map[string]any{"n": 2.5}, 0, true},
		{"negative", map[string]any{"n": -1.0}, 0, true},
		{"string", map[string]any{"n": "3"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := optionalInt(tt.args, "n", 7)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
