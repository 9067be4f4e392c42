package probe

import "testing"

func TestAttrsIncludesShellAndPid(t *testing.T) {
	attrs := Attrs("/bin/bash")
	if attrs["shell"] != "/bin/bash" {
		t.Fatalf("expected shell attr, got %+v", attrs)
	}
	if attrs["pid"] == "" {
		t.Fatal("expected non-empty pid attr")
	}
	if attrs["hostname"] == "" {
		t.Fatal("expected non-empty hostname attr")
	}
}
