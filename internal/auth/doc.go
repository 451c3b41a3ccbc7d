// Package auth issues and validates the bearer tokens that protect the
// video API.
//
// Tokens are HS256-signed JWTs carrying a subject and a scope. The scope
// "video:control" is required to change streaming; "video:read" covers
// everything else. Validation checks the signature, expiry, issuer and
// that the subject is set; no database is involved.
package auth
