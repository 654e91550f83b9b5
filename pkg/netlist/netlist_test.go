package netlist

import (
	"errors"
	"testing"
)

func buildNetlist(t *testing.T) *Netlist {
	t.Helper()
	nl := New()
	a := nl.AddBlock("a", "clb", true)
	b := nl.AddBlock("b", "clb", true)
	c := nl.AddBlock("c", "io", false)

	n0 := nl.AddNet("n0")
	if _, err := nl.AddPin(n0, a, true); err != nil {
		t.Fatalf("AddPin: %v", err)
	}
	if _, err := nl.AddPin(n0, b, false); err != nil {
		t.Fatalf("AddPin: %v", err)
	}
	if _, err := nl.AddPin(n0, c, false); err != nil {
		t.Fatalf("AddPin: %v", err)
	}
	if err := nl.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return nl
}

func TestAddBlock(t *testing.T) {
	nl := New()
	a := nl.AddBlock("a", "clb", true)
	b := nl.AddBlock("b", "io", false)

	if nl.NumBlocks() != 2 {
		t.Errorf("NumBlocks() = %d, want 2", nl.NumBlocks())
	}
	if got := nl.Block(a); got.Name != "a" || got.Type != "clb" || !got.Moveable {
		t.Errorf("Block(a) = %+v", got)
	}
	if got := nl.Block(b); got.Moveable {
		t.Error("fixed block reported moveable")
	}
}

func TestDuplicateDriver(t *testing.T) {
	nl := New()
	a := nl.AddBlock("a", "clb", true)
	b := nl.AddBlock("b", "clb", true)
	net := nl.AddNet("n")

	if _, err := nl.AddPin(net, a, true); err != nil {
		t.Fatalf("first driver: %v", err)
	}
	_, err := nl.AddPin(net, b, true)
	if !errors.Is(err, ErrDuplicateDriver) {
		t.Errorf("second driver error = %v, want ErrDuplicateDriver", err)
	}
}

func TestFinalizeIgnoresDegenerateNets(t *testing.T) {
	nl := New()
	a := nl.AddBlock("a", "clb", true)
	b := nl.AddBlock("b", "clb", true)

	// Two pins on the same block: no placement influence.
	selfNet := nl.AddNet("self")
	if _, err := nl.AddPin(selfNet, a, true); err != nil {
		t.Fatal(err)
	}
	if _, err := nl.AddPin(selfNet, a, false); err != nil {
		t.Fatal(err)
	}

	realNet := nl.AddNet("real")
	if _, err := nl.AddPin(realNet, a, true); err != nil {
		t.Fatal(err)
	}
	if _, err := nl.AddPin(realNet, b, false); err != nil {
		t.Fatal(err)
	}

	if err := nl.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !nl.Net(selfNet).Ignored {
		t.Error("single-block net should be auto-ignored")
	}
	if nl.Net(realNet).Ignored {
		t.Error("two-block net should not be ignored")
	}
}

func TestBlockNets(t *testing.T) {
	nl := buildNetlist(t)

	nets := nl.BlockNets(BlockID(0))
	if len(nets) != 1 || nets[0] != NetID(0) {
		t.Errorf("BlockNets(a) = %v, want [0]", nets)
	}
}

func TestDriver(t *testing.T) {
	nl := buildNetlist(t)

	if got := nl.Driver(NetID(0)); got != BlockID(0) {
		t.Errorf("Driver(n0) = %d, want 0", got)
	}
}

func TestMoveableBlocks(t *testing.T) {
	nl := buildNetlist(t)

	moveable := nl.MoveableBlocks()
	if len(moveable) != 2 {
		t.Fatalf("MoveableBlocks() = %v, want 2 entries", moveable)
	}
	for _, b := range moveable {
		if !nl.Block(b).Moveable {
			t.Errorf("block %d in MoveableBlocks but not moveable", b)
		}
	}
}

func TestFanout(t *testing.T) {
	nl := buildNetlist(t)

	if got := nl.Fanout(NetID(0)); got != 3 {
		t.Errorf("Fanout(n0) = %d, want 3", got)
	}
}
