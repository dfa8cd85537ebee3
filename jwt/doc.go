// Package jwt issues and verifies the two signed token families: short-lived
// access tokens and long-lived refresh tokens.
//
// Each family has its own key material. Issuance is pure computation with no
// storage access. Revocation and device binding live above this package.
package jwt
