package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/ibeckermayer/snapbot/internal/types"
)

// KeyringService is the keychain service passwords are read from. Entries
// are keyed "<site>:<username>" and are managed by the operator; snapbot
// never writes them.
const KeyringService = "snapbot"

// ErrNoCredential is returned when no source supplies a required value.
var ErrNoCredential = errors.New("no credential available")

// Credentials resolves login credentials, in order, from SNAPBOT_<SITE>_*
// variables, the OS keychain, then an interactive prompt.
type Credentials struct {
	Getenv  func(string) string
	Keyring func(service, user string) (string, error)
	Prompt  func(label string, secret bool) (string, error) // optional
}

// NewCredentials uses the process environment and the OS keychain.
func NewCredentials(prompt func(label string, secret bool) (string, error)) *Credentials {
	return &Credentials{
		Getenv:  os.Getenv,
		Keyring: keyring.Get,
		Prompt:  prompt,
	}
}

func envKey(site, field string) string {
	return fmt.Sprintf("SNAPBOT_%s_%s", strings.ToUpper(site), field)
}

// Lookup returns the credential for username on site. An empty username is
// taken from the environment or the prompt.
func (c *Credentials) Lookup(site, username string) (types.Credential, error) {
	if username == "" {
		username = c.Getenv(envKey(site, "USERNAME"))
	}
	if username == "" && c.Prompt != nil {
		v, err := c.Prompt(fmt.Sprintf("%s username: ", site), false)
		if err != nil {
			return types.Credential{}, err
		}
		username = strings.TrimSpace(v)
	}
	if username == "" {
		return types.Credential{}, fmt.Errorf("%w: %s username", ErrNoCredential, site)
	}

	password := c.Getenv(envKey(site, "PASSWORD"))
	if password == "" && c.Keyring != nil {
		v, err := c.Keyring(KeyringService, site+":"+username)
		switch {
		case err == nil:
			password = v
		case errors.Is(err, keyring.ErrNotFound):
		default:
			// Keychain unavailable (headless Linux, CI); fall through to prompt.
		}
	}
	if password == "" && c.Prompt != nil {
		v, err := c.Prompt(fmt.Sprintf("%s password for %s: ", site, username), true)
		if err != nil {
			return types.Credential{}, err
		}
		password = v
	}
	if password == "" {
		return types.Credential{}, fmt.Errorf("%w: %s password for %s", ErrNoCredential, site, username)
	}

	return types.Credential{Identifier: username, Secret: password}, nil
}
