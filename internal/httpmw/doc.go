// Package httpmw holds the HTTP middleware shared by the gateway's
// listeners: request IDs, client IP resolution, request logging, and
// panic recovery.
package httpmw
