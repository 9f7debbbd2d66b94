package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Shell metacharacters that could be used for command injection
var dangerousCharacters = []string{
	";",    // Command separator
	"|",    // Pipe
	"&",    // Background/AND
	"$",    // Variable expansion
	"`",    // Command substitution
	"(",    // Subshell
	")",    // Subshell
	"<",    // Input redirection
	">",    // Output redirection
	"\n",   // Newline (command separator)
	"\r",   // Carriage return
	"*",    // Glob wildcard
	"?",    // Glob wildcard
	"'",    // String delimiter (can break out of quotes)
	"\"",   // String delimiter (can break out of quotes)
	"\\",   // Escape character
	"\t",   // Tab (can cause parsing issues)
	"\x00", // Null byte
}

// secretOptionKeys are mount options that would put a secret into configuration text or argv
var secretOptionKeys = map[string]bool{
	"username":    true,
	"user":        true,
	"password":    true,
	"pass":        true,
	"password2":   true,
	"credentials": true,
	"cred":        true,
}

// containsDangerous returns the first dangerous character found in s
func containsDangerous(s string) (string, bool) {
	for _, char := range dangerousCharacters {
		if strings.Contains(s, char) {
			return char, true
		}
	}
	return "", false
}

// ValidateMountPoint validates that a mount point path is absolute, clean and safe
// to pass to mount(8)
func ValidateMountPoint(path string) error {
	if path == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	if char, found := containsDangerous(path); found {
		return fmt.Errorf("mount point contains dangerous character %q: %s", char, path)
	}

	// Clean the path to resolve any ./ or ../ components
	cleanPath := filepath.Clean(path)
	if cleanPath != path {
		return fmt.Errorf("mount point contains traversal sequences or unnecessary components: %s (cleaned: %s)", path, cleanPath)
	}

	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("mount point must be absolute: %s", path)
	}

	if cleanPath == "/" {
		return fmt.Errorf("mount point cannot be the root directory")
	}

	return nil
}

// ValidateCredentialRef validates an opaque credential reference.
// References name a file or keyring entry, so they must be a single plain path element.
func ValidateCredentialRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("credential reference cannot be empty")
	}

	if len(ref) > 255 {
		return fmt.Errorf("credential reference too long (%d > 255)", len(ref))
	}

	if char, found := containsDangerous(ref); found {
		return fmt.Errorf("credential reference contains dangerous character %q", char)
	}

	if strings.ContainsRune(ref, '/') || ref == "." || ref == ".." || strings.HasPrefix(ref, ".") {
		return fmt.Errorf("credential reference must be a plain name: %q", ref)
	}

	if strings.ContainsAny(ref, " =,") {
		return fmt.Errorf("credential reference contains whitespace or separators: %q", ref)
	}

	return nil
}

// ValidateMountOption validates a single mount option.
// Options holding secrets are rejected; secrets only come from the credential store.
func ValidateMountOption(key, value string) error {
	if key == "" {
		return fmt.Errorf("mount option name cannot be empty")
	}

	if secretOptionKeys[strings.ToLower(key)] {
		return fmt.Errorf("mount option %q carries credentials; use a credential reference instead", key)
	}

	if strings.ContainsAny(key, "=, ") {
		return fmt.Errorf("mount option name %q contains '=', ',' or whitespace", key)
	}

	if strings.Contains(value, ",") {
		return fmt.Errorf("mount option %q value contains ','", key)
	}

	if char, found := containsDangerous(key + value); found {
		return fmt.Errorf("mount option %q contains dangerous character %q", key, char)
	}

	return nil
}
