// Package crypto seals Cloudflare API tokens before they are written to
// the accounts table and redacts them for the UI.
package crypto

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/fernet/fernet-go"
	"gorm.io/gorm"
)

const (
	keySetting = "fernet_key"
	maskPrefix = "****"
)

// ErrUnreadableToken means a stored token was not sealed with the current
// key, typically after the settings table was reset.
var ErrUnreadableToken = errors.New("stored API token cannot be decrypted")

var (
	keyMu    sync.Mutex
	cachedDB *gorm.DB
	cached   *fernet.Key
)

// panelKey loads the Fernet key from settings, creating it on first use.
// The key is cached per database handle.
func panelKey() (*fernet.Key, error) {
	keyMu.Lock()
	defer keyMu.Unlock()
	if cached != nil && cachedDB == database.DB {
		return cached, nil
	}

	encoded, err := database.GetSetting(keySetting)
	switch {
	case err == nil:
		k, err := fernet.DecodeKey(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode %s setting: %w", keySetting, err)
		}
		cached = k
	case database.IsNotFound(err):
		k := new(fernet.Key)
		if err := k.Generate(); err != nil {
			return nil, fmt.Errorf("generate panel key: %w", err)
		}
		if err := database.SetSetting(keySetting, k.Encode()); err != nil {
			return nil, fmt.Errorf("store panel key: %w", err)
		}
		cached = k
	default:
		return nil, fmt.Errorf("load %s setting: %w", keySetting, err)
	}
	cachedDB = database.DB
	return cached, nil
}

// SealToken encrypts an API token for storage. Accounts without a token
// keep an empty column.
func SealToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	key, err := panelKey()
	if err != nil {
		return "", err
	}
	sealed, err := fernet.EncryptAndSign([]byte(token), key)
	if err != nil {
		return "", fmt.Errorf("seal API token: %w", err)
	}
	return string(sealed), nil
}

// OpenToken reverses SealToken. Sealed tokens never expire.
func OpenToken(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	key, err := panelKey()
	if err != nil {
		return "", err
	}
	token := fernet.VerifyAndDecrypt([]byte(sealed), 0, []*fernet.Key{key})
	if token == nil {
		return "", ErrUnreadableToken
	}
	return string(token), nil
}

// MaskToken keeps the last four characters so operators can tell tokens
// apart in the accounts list.
func MaskToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 4:
		return maskPrefix
	default:
		return maskPrefix + token[len(token)-4:]
	}
}

// IsMaskedToken reports whether the UI sent back the redacted value it
// was shown instead of a new token.
func IsMaskedToken(value string) bool {
	return strings.HasPrefix(value, maskPrefix)
}
