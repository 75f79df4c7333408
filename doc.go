// Package authcore is the embeddable authentication and session-security
// core for the AUSTA health platform.
//
// It verifies credentials against a pluggable user store, enforces
// per-address rate limits and per-account lockout, drives TOTP and SMS
// second factors for privileged roles, and issues rotating JWT session
// tokens whose refresh side is tracked and revocable through a shared
// Redis instance.
//
// Construct an Engine with the builder:
//
//	engine, err := authcore.New().
//		WithSigningSecret(secret).
//		WithRedis(redisClient).
//		WithCredentialStore(store).
//		WithLogger(logger).
//		Build()
//
// All Engine methods are safe for concurrent use. Calls to the credential
// store and the SMS provider run behind circuit breakers, so an outage in
// either degrades to fast ErrServiceUnavailable responses instead of
// piling up blocked requests.
package authcore
