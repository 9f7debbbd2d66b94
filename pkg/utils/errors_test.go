package utils

import (
	"strings"
	"testing"
)

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		shouldMatch   []string // Substrings that should be in output
		shouldntMatch []string // Substrings that should NOT be in output
	}{
		{
			name:          "password option",
			input:         "mount -o vers=3.0,password=hunter2,uid=1000 //nas/share /mnt/share",
			shouldMatch:   []string{"vers=3.0", "password=[REDACTED]", "uid=1000", "//nas/share"},
			shouldntMatch: []string{"hunter2"},
		},
		{
			name:          "pass alias is redacted",
			input:         "options: pass=s3cret",
			shouldMatch:   []string{"pass=[REDACTED]"},
			shouldntMatch: []string{"s3cret"},
		},
		{
			name:          "PASSWD environment echo",
			input:         "env: USER=alice PASSWD=topsecret",
			shouldMatch:   []string{"USER=alice", "PASSWD=[REDACTED]"},
			shouldntMatch: []string{"topsecret"},
		},
		{
			name:          "user percent password form",
			input:         "username=alice%topsecret,domain=CORP",
			shouldMatch:   []string{"username=alice%[REDACTED]", "domain=CORP"},
			shouldntMatch: []string{"topsecret"},
		},
		{
			name:          "cifs error output is kept intact",
			input:         "mount error(13): Permission denied\nRefer to the mount.cifs(8) manual page",
			shouldMatch:   []string{"mount error(13): Permission denied", "mount.cifs(8)"},
			shouldntMatch: []string{},
		},
		{
			name:          "addresses are kept",
			input:         "mount error(112): Host is down 10.0.0.5",
			shouldMatch:   []string{"10.0.0.5", "Host is down"},
			shouldntMatch: []string{},
		},
		{
			name:          "empty password value",
			input:         "password=,vers=3.0",
			shouldMatch:   []string{"password=[REDACTED]", "vers=3.0"},
			shouldntMatch: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RedactSecrets(tt.input)

			for _, match := range tt.shouldMatch {
				if !strings.Contains(result, match) {
					t.Errorf("Expected output to contain %q, got: %s", match, result)
				}
			}

			for _, noMatch := range tt.shouldntMatch {
				if strings.Contains(result, noMatch) {
					t.Errorf("Expected output NOT to contain %q, got: %s", noMatch, result)
				}
			}
		})
	}
}

func TestRedactSecrets_CollapsesWhitespace(t *testing.T) {
	result := RedactSecrets("  mount   failed\t\twith  error  ")
	if result != "mount failed with error" {
		t.Errorf("unexpected result %q", result)
	}
}
