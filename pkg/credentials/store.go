// Package credentials resolves opaque credential references into SMB credentials.
//
// The supervisor never sees secrets in configuration: a MountSpec only carries a
// reference, which a Store turns into a username and password at mount time.
package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

var (
	// ErrNotFound indicates the reference does not name any stored credentials
	ErrNotFound = errors.New("credentials not found")

	// ErrInvalid indicates the stored credentials exist but cannot be used
	ErrInvalid = errors.New("invalid credentials")
)

// Credentials are the resolved secret for a share
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// String never includes the password
func (c Credentials) String() string {
	s := fmt.Sprintf("username=%s password=[REDACTED]", c.Username)
	if c.Domain != "" {
		s += " domain=" + c.Domain
	}
	return s
}

// GoString keeps %#v from printing the password
func (c Credentials) GoString() string {
	return "credentials.Credentials{" + c.String() + "}"
}

// Store resolves a credential reference
type Store interface {
	// Resolve returns the credentials for ref. Errors wrap ErrNotFound or ErrInvalid.
	Resolve(ctx context.Context, ref string) (Credentials, error)

	// Name identifies the backend in logs and security events
	Name() string
}

// Parse reads the cifs credentials-file format:
//
//	username=alice
//	password=secret
//	domain=CORP
//
// Blank lines and lines starting with '#' are ignored. Keys are case-insensitive;
// "user" and "pass" are accepted as aliases, as mount.cifs does.
func Parse(text string) (Credentials, error) {
	var c Credentials
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Credentials{}, fmt.Errorf("%w: line %d is not key=value", ErrInvalid, lineNo)
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "username", "user":
			c.Username = strings.TrimSpace(value)
		case "password", "pass":
			// Leading/trailing spaces can be part of a password
			c.Password = value
		case "domain", "dom", "workgroup":
			c.Domain = strings.TrimSpace(value)
		default:
			return Credentials{}, fmt.Errorf("%w: unknown key %q on line %d", ErrInvalid, strings.TrimSpace(key), lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := c.Validate(); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Validate checks that c can be handed to mount.cifs. The domain ends up in the
// mount option string, so it must be a single option value.
func (c Credentials) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("%w: username is missing", ErrInvalid)
	}
	if c.Domain != "" {
		if strings.Contains(c.Domain, "=") {
			return fmt.Errorf("%w: domain contains '='", ErrInvalid)
		}
		if err := utils.ValidateMountOption("domain", c.Domain); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}
