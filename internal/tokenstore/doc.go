// Package tokenstore implements the token lifecycle manager: durable, shared
// storage of access/refresh token pairs for multiple accounts with expiry
// detection and automatic refresh.
//
// The whole collection of records lives in a single document in a blob store.
// Every operation is a full-document read, and every mutation is a
// full-document overwrite serialized behind a process-wide lock. Request
// handlers ask the manager for a valid access token by account identifier and
// never deal with token lifetimes or the refresh handshake themselves.
package tokenstore
