package app

import "github.com/escalaapp/escala/internal/auth"

// JWTServiceConfig converts the auth section into JWT service parameters,
// substituting the package default when no TTL is configured.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	out := auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: c.JWT.TTL,
	}
	if out.AccessTokenTTL <= 0 {
		out.AccessTokenTTL = auth.DefaultAccessTokenTTL
	}

	return out
}
