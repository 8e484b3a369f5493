// Package jwt inspects bearer tokens that happen to be JWTs.
//
// The accounts backend issues opaque tokens today, so the Guard treats every
// token as opaque. When a deployment issues JWTs instead, [Inspect] exposes
// their registered claims (expiry in particular) without verifying the
// signature; the client holds no verification key and the server remains the
// authority.
package jwt
