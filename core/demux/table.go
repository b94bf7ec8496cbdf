// File: core/demux/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package demux

import (
	"fmt"
	"sort"

	"github.com/momentics/hioload-mp/api"
)

// Table is the static channel-to-source map of one deployment. Channels
// registered with Ignore are expected to fire but carry nothing the
// interpreter waits on.
type Table struct {
	sources map[api.Channel]api.EventSource
	ignored map[api.Channel]struct{}
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		sources: make(map[api.Channel]api.EventSource),
		ignored: make(map[api.Channel]struct{}),
	}
}

// Map binds ch to a single event source.
func (t *Table) Map(ch api.Channel, src api.EventSource) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", api.ErrInvalidChannel, ch)
	}
	if !src.Single() {
		return fmt.Errorf("%w: channel %d bound to %v", api.ErrInvalidArgument, ch, src)
	}
	if err := t.claim(ch); err != nil {
		return err
	}
	t.sources[ch] = src
	return nil
}

// Ignore marks ch as an expected channel without a source.
func (t *Table) Ignore(ch api.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("%w: %d", api.ErrInvalidChannel, ch)
	}
	if err := t.claim(ch); err != nil {
		return err
	}
	t.ignored[ch] = struct{}{}
	return nil
}

func (t *Table) claim(ch api.Channel) error {
	if src, ok := t.sources[ch]; ok {
		return fmt.Errorf("%w: channel %d already bound to %v", api.ErrAlreadyExists, ch, src)
	}
	if _, ok := t.ignored[ch]; ok {
		return fmt.Errorf("%w: channel %d already ignored", api.ErrAlreadyExists, ch)
	}
	return nil
}

// Lookup returns the source bound to ch. known is false for channels the
// table has never heard of.
func (t *Table) Lookup(ch api.Channel) (src api.EventSource, known bool) {
	if src, ok := t.sources[ch]; ok {
		return src, true
	}
	_, ok := t.ignored[ch]
	return api.SourceNone, ok
}

// Channels lists every registered channel in ascending order.
func (t *Table) Channels() []api.Channel {
	out := make([]api.Channel, 0, len(t.sources)+len(t.ignored))
	for ch := range t.sources {
		out = append(out, ch)
	}
	for ch := range t.ignored {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
