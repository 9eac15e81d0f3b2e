// Package authlyerr collects the sentinel errors shared across the client
// runtime. Callers match on these with errors.Is; wrapped detail is carried
// by the wrapping error's message, not by distinct types.
package authlyerr

import "errors"

var (
	ErrPrivateKeyGen                 = errors.New("private key generation failed")
	ErrAuthlyCA                      = errors.New("authly ca error")
	ErrAuthlyCAMissing               = errors.New("authly local ca missing")
	ErrIdentity                      = errors.New("identity error")
	ErrTLS                           = errors.New("tls error")
	ErrEnvironmentNotInferrable      = errors.New("connection environment not inferrable")
	ErrInvalidCommonName             = errors.New("invalid common name")
	ErrInvalidAltNames               = errors.New("invalid subject alternative names")
	ErrInvalidPropertyAttributeLabel = errors.New("invalid property attribute label")
	ErrInvalidAccessToken            = errors.New("invalid access token")
	ErrUnauthorized                  = errors.New("unauthorized")
	ErrNetwork                       = errors.New("network error")
	ErrCodec                         = errors.New("codec error")
	ErrAccessDenied                  = errors.New("access denied")
	ErrUnclassified                  = errors.New("unclassified error")
)
