package app

import (
	"fmt"
	"strings"

	"github.com/escalaapp/escala/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults fills in secrets a fresh install will not have
// configured yet. The returned map names each generated key so the caller
// can log the event without logging the value.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated["auth.jwt.secret"] = true
	}

	return generated, nil
}
