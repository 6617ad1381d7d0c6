package version

import "testing"

func TestString(t *testing.T) {
	origV, origSHA := Version, GitSHA
	defer func() { Version, GitSHA = origV, origSHA }()

	Version = "1.2.0"
	GitSHA = "0123456789abcdef0123"
	if got, want := String(), "1.2.0 (0123456789ab)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	GitSHA = "abc"
	if got, want := String(), "1.2.0 (abc)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
