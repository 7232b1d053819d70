// Package backend implements the JSON REST client for the curation server.
//
// Every call is a single request with no retries. Any 2xx status is success;
// transport failures surface as *NetworkError and non-2xx responses as
// *StatusError so callers can leave local state untouched on failure.
// Requests carry an X-Request-ID and pass through a shared rate limiter.
package backend
