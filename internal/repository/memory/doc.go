// Package memory provides mutex-guarded in-memory implementations of
// the repository contracts. They back the default single-node deployment
// and the end-to-end tests; data does not survive a restart.
package memory
