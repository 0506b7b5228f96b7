package env

import (
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("TM_TEST_STRING", "  value  ")
	if got := String("TM_TEST_STRING", "def"); got != "value" {
		t.Errorf("String() = %q, want %q", got, "value")
	}
	t.Setenv("TM_TEST_STRING", "   ")
	if got := String("TM_TEST_STRING", "def"); got != "def" {
		t.Errorf("String() = %q, want %q", got, "def")
	}
}

func TestMustPanicsWhenMissing(t *testing.T) {
	t.Setenv("TM_TEST_MUST", "")
	defer func() {
		if recover() == nil {
			t.Error("expected panic for missing env")
		}
	}()
	Must("TM_TEST_MUST")
}

func TestBool(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"0", true, false},
		{"", true, true},
		{"nope", false, false},
	}
	for _, tt := range tests {
		t.Setenv("TM_TEST_BOOL", tt.raw)
		if got := Bool("TM_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("Bool(%q, %v) = %v, want %v", tt.raw, tt.def, got, tt.want)
		}
	}
}

func TestIntAndDuration(t *testing.T) {
	t.Setenv("TM_TEST_INT", "12")
	if got := Int("TM_TEST_INT", 3); got != 12 {
		t.Errorf("Int() = %d, want 12", got)
	}
	t.Setenv("TM_TEST_INT", "x")
	if got := Int("TM_TEST_INT", 3); got != 3 {
		t.Errorf("Int() = %d, want 3", got)
	}

	t.Setenv("TM_TEST_DUR", "750ms")
	if got := Duration("TM_TEST_DUR", time.Second); got != 750*time.Millisecond {
		t.Errorf("Duration() = %s, want 750ms", got)
	}
	t.Setenv("TM_TEST_DUR", "soon")
	if got := Duration("TM_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("Duration() = %s, want 1s", got)
	}
}

func TestCSV(t *testing.T) {
	def := []string{"http://localhost:8081"}

	t.Setenv("TM_TEST_CSV", " a, ,b ")
	if got := CSV("TM_TEST_CSV", def); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("CSV() = %v", got)
	}
	t.Setenv("TM_TEST_CSV", " , ")
	if got := CSV("TM_TEST_CSV", def); !reflect.DeepEqual(got, def) {
		t.Errorf("CSV() = %v, want default", got)
	}
}
