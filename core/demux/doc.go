// Package demux maps kernel channel notifications onto scheduler event
// sources and wakes the interpreter when the source it awaits fires.
package demux
