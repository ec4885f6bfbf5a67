package catalog

import "testing"

func TestKeysAreUnique(t *testing.T) {
	seen := make(map[string]Flag)
	for _, f := range All() {
		if f.Key() == "" {
			t.Errorf("flag %d has an empty key", int(f))
		}
		if prev, ok := seen[f.Key()]; ok {
			t.Errorf("key %q declared for both %v and %v", f.Key(), prev, f)
		}
		seen[f.Key()] = f
	}
}

func TestFromKeyRoundTrip(t *testing.T) {
	for _, f := range All() {
		got, err := FromKey(f.Key())
		if err != nil {
			t.Fatalf("FromKey(%q) error = %v", f.Key(), err)
		}
		if got != f {
			t.Errorf("FromKey(%q) = %v, want %v", f.Key(), got, f)
		}
	}
}

func TestFromKeyUnknown(t *testing.T) {
	if _, err := FromKey("no-such-flag"); err == nil {
		t.Error("FromKey should fail for an undeclared key")
	}
}

func TestStringOutOfRange(t *testing.T) {
	if got := Flag(-1).String(); got != "Flag(-1)" {
		t.Errorf("String() = %q, want %q", got, "Flag(-1)")
	}
	if got := RateLimiting.String(); got != "rate-limiting" {
		t.Errorf("String() = %q, want %q", got, "rate-limiting")
	}
}

func TestDefaultsAreConservative(t *testing.T) {
	// New functionality starts dark; turning a flag on is always an explicit
	// operator action.
	for _, f := range All() {
		if f.DefaultValue() {
			t.Errorf("flag %v defaults to enabled", f)
		}
	}
}
