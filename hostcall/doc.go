// Package hostcall
// Author: momentics <momentics@gmail.com>
//
// Host calls made by interpreter code. Each call is synchronous from the
// interpreter's point of view: it queues a request for a peer domain,
// signals the peer and suspends in Await until the matching event source
// fires. None of these calls may be made from the event context.
//
// Some types also carry event-context halves (ProcessRX, FlushTX,
// ProcessCompletions) which the boot component installs as demux hooks.
package hostcall
