package authtoken

import "testing"

func TestEnsureTokenGeneratesAndCaches(t *testing.T) {
	dir := t.TempDir()

	tok1, err := EnsureToken(dir)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if len(tok1) == 0 {
		t.Fatal("expected non-empty token")
	}

	tok2, err := EnsureToken(dir)
	if err != nil {
		t.Fatalf("second EnsureToken: %v", err)
	}
	if tok1 != tok2 {
		t.Fatal("expected cached token to be reused")
	}
}

func TestVerify(t *testing.T) {
	if !Verify("abc", "abc") {
		t.Fatal("expected matching tokens to verify")
	}
	if Verify("abc", "xyz") {
		t.Fatal("expected mismatched tokens to fail")
	}
	if !Verify("", "anything") {
		t.Fatal("expected empty expected token to disable auth")
	}
}
