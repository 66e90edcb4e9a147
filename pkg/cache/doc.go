// Package cache persists OAuth tokens between invocations of command-line tools.
//
// Obtaining a token from the identity server takes a multi-request web login; reusing a cached
// token (and refreshing it when stale) reduces that to at most one request. A TokenCache maps
// account identities to their most recent tokens, so one session file serves users with several
// Porsche Connect accounts. If a cached token has expired and its refresh token has been revoked,
// the account falls back to a full login; outdated cache entries cost one failed refresh request,
// never a hard error.
//
// Session files contain bearer tokens. They are written with owner-only permissions; keep them
// out of shared directories and version control.
package cache
