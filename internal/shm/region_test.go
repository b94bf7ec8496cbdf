package shm_test

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-mp/api"
	"github.com/momentics/hioload-mp/internal/shm"
)

func TestRegistryMapsOnceAndShares(t *testing.T) {
	g := shm.NewRegistry()
	defer g.Close()

	a, err := g.Map("serial_rx_free", 4096)
	if err != nil {
		t.Fatal(err)
	}
	a.Bytes()[7] = 0x5a
	b, err := g.Map("serial_rx_free", 4096)
	if err != nil {
		t.Fatal(err)
	}
	if b.Bytes()[7] != 0x5a {
		t.Error("second Map did not return the same memory")
	}
	if _, err := g.Map("serial_rx_free", 8192); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("size mismatch err = %v", err)
	}
	if _, err := g.Lookup("missing"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("lookup err = %v", err)
	}
	if got := g.Names(); len(got) != 1 || got[0] != "serial_rx_free" {
		t.Errorf("Names = %v", got)
	}
}
