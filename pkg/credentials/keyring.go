package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/mountsup/pkg/utils"
)

// DefaultKeyringService is the keyring service name entries are stored under
const DefaultKeyringService = "mountsup"

// KeyringStore resolves a reference from the OS keyring.
// The entry for (Service, ref) holds the same text as a credentials file.
type KeyringStore struct {
	Service string
}

// NewKeyringStore creates a keyring-backed store
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{Service: service}
}

// Name implements Store
func (s *KeyringStore) Name() string {
	return "keyring"
}

// Resolve implements Store
func (s *KeyringStore) Resolve(ctx context.Context, ref string) (Credentials, error) {
	if err := utils.ValidateCredentialRef(ref); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	klog.V(4).Infof("Resolving credential reference %s from keyring service %s", ref, s.Service)

	secret, err := keyring.Get(s.Service, ref)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Credentials{}, fmt.Errorf("%w: no keyring entry for reference %s", ErrNotFound, ref)
		}
		return Credentials{}, fmt.Errorf("%w: keyring lookup failed: %v", ErrInvalid, err)
	}

	creds, err := Parse(secret)
	if err != nil {
		return Credentials{}, fmt.Errorf("credentials for reference %s: %w", ref, err)
	}
	return creds, nil
}

// Store saves credentials for ref into the keyring in credentials-file format
func (s *KeyringStore) Store(ref string, creds Credentials) error {
	if err := utils.ValidateCredentialRef(ref); err != nil {
		return fmt.Errorf("invalid credential reference: %w", err)
	}

	text := "username=" + creds.Username + "\npassword=" + creds.Password + "\n"
	if creds.Domain != "" {
		text += "domain=" + creds.Domain + "\n"
	}

	if err := keyring.Set(s.Service, ref, text); err != nil {
		return fmt.Errorf("error saving credentials in keyring: %w", err)
	}
	klog.V(2).Infof("Saved credentials for reference %s in keyring service %s", ref, s.Service)
	return nil
}
