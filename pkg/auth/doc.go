// Package auth provides pluggable authentication and authorization for wingman.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from pipeline
// logic. The authenticated identity carries the service tier that rate
// limiting and reply generation consult.
package auth
