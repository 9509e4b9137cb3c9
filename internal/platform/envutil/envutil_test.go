package envutil

import (
	"testing"
	"time"
)

func TestDurationParsesStringsAndSeconds(t *testing.T) {
	t.Setenv("LS_TEST_DUR", "250ms")
	if got := Duration("LS_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("duration string: want=250ms got=%s", got)
	}
	t.Setenv("LS_TEST_DUR", "7")
	if got := Duration("LS_TEST_DUR", time.Second); got != 7*time.Second {
		t.Fatalf("duration seconds: want=7s got=%s", got)
	}
	t.Setenv("LS_TEST_DUR", "soon")
	if got := Duration("LS_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("duration fallback: want=1s got=%s", got)
	}
}

func TestBoolAndIntFallbacks(t *testing.T) {
	t.Setenv("LS_TEST_BOOL", "yes")
	if !Bool("LS_TEST_BOOL", false) {
		t.Fatalf("bool: want=true")
	}
	t.Setenv("LS_TEST_BOOL", "maybe")
	if Bool("LS_TEST_BOOL", false) {
		t.Fatalf("bool fallback: want=false")
	}
	t.Setenv("LS_TEST_INT", "x")
	if got := Int("LS_TEST_INT", 3); got != 3 {
		t.Fatalf("int fallback: want=3 got=%d", got)
	}
	if got := String("LS_TEST_UNSET_STRING", "def"); got != "def" {
		t.Fatalf("string fallback: want=def got=%q", got)
	}
}
