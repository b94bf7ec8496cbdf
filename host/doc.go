// Package host
// Author: momentics <momentics@gmail.com>
//
// In-process runtime for protection domains. Every domain gets its own
// Loop goroutine that delivers coalesced channel notifications one at a
// time; a System wires channels between domains and routes protected
// procedure calls synchronously into the callee.
package host
