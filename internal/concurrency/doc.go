// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative concurrency primitives for hioload-mp: execution contexts
// that hand a single baton back and forth, and the bounded rings the two
// contexts share. Nothing here preempts; every suspension is an explicit
// Switch.
package concurrency
