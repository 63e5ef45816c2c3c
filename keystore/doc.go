// Package keystore provides an in-memory, versioned key store that backs
// key manager sessions.
//
// Keys live in namespaces. A session opened with an options bag that sets
// "context" works in the namespace of that name; otherwise it uses the
// default namespace. Each Put appends a new version numbered from 1.
// Invalidated versions stay recorded but can no longer be looked up.
package keystore
