// Package credential resolves channel tokens from the OS keyring when the
// config leaves them empty, so secrets can stay out of config files.
package credential

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "duebot"

const (
	KeyTelegramToken = "telegram_token"
	KeyLineToken     = "line_channel_token"
)

func open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/duebot/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("duebot-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key, value string) error {
	ring, err := open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Resolve returns the configured value when present, otherwise falls back
// to the keyring. A missing keyring entry is not an error: adapters report
// the empty credential as a per-platform outcome.
func Resolve(configured, key string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	v, err := Get(key)
	if err != nil {
		return ""
	}
	return v
}
