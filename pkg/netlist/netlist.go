// Package netlist provides the immutable netlist view consumed by the
// placement engine.
//
// Blocks, pins, and nets live in arena slices owned by the Netlist and are
// referenced everywhere by stable integer handles (BlockID, NetID, PinID),
// never by pointer. The netlist is built once by the caller (the upstream
// packing stage, or a test) and is immutable during placement: the engine
// only ever reassigns block sites, which live in pkg/place, not here.
package netlist

import "errors"

var (
	// ErrUnknownBlock is returned by [Netlist.AddPin] when the block handle
	// does not exist.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrUnknownNet is returned by [Netlist.AddPin] and [Netlist.SetIgnored]
	// when the net handle does not exist.
	ErrUnknownNet = errors.New("unknown net")

	// ErrDuplicateDriver is returned by [Netlist.AddPin] when a net already
	// has a driver pin. Every net has exactly one driver.
	ErrDuplicateDriver = errors.New("net already has a driver pin")

	// ErrEmptyNet is returned by [Netlist.Finalize] when a net has no pins.
	ErrEmptyNet = errors.New("net has no pins")
)

// BlockID is a stable handle to a block in the netlist arena.
type BlockID int

// NetID is a stable handle to a net in the netlist arena.
type NetID int

// PinID is a stable handle to a pin in the netlist arena.
type PinID int

// NoBlock is the null block handle.
const NoBlock BlockID = -1

// Block is a placeable logical unit. Type constrains which device sites may
// host it; fixed blocks (Moveable == false) keep their seed site for the
// whole run and act as anchors in the analytical formulation.
type Block struct {
	Name     string
	Type     string
	Moveable bool
}

// Pin connects a block to a net. Each net has exactly one driver pin; the
// rest are sinks.
type Pin struct {
	Net    NetID
	Block  BlockID
	Driver bool
}

// Net is a hyperedge over pins: one driver, one or more sinks. Nets flagged
// Ignored (single real endpoint, or clock-like nets handled elsewhere) are
// excluded from all cost computation and from the analytical system.
type Net struct {
	Name    string
	Pins    []PinID
	Ignored bool
}

// Netlist is the arena for blocks, pins, and nets.
//
// The zero value is not usable - use New. Netlist is not safe for concurrent
// mutation; after Finalize it is read-only and safe to share.
type Netlist struct {
	blocks []Block
	nets   []Net
	pins   []Pin

	// blockNets[b] lists the nets touching block b, deduplicated. Built by
	// Finalize; this is what makes incremental cost evaluation proportional
	// to the fanout of the moved block.
	blockNets [][]NetID

	finalized bool
}

// New creates an empty netlist.
func New() *Netlist {
	return &Netlist{}
}

// AddBlock appends a block to the arena and returns its handle.
func (n *Netlist) AddBlock(name, typ string, moveable bool) BlockID {
	n.blocks = append(n.blocks, Block{Name: name, Type: typ, Moveable: moveable})
	return BlockID(len(n.blocks) - 1)
}

// AddNet appends an empty net to the arena and returns its handle.
func (n *Netlist) AddNet(name string) NetID {
	n.nets = append(n.nets, Net{Name: name})
	return NetID(len(n.nets) - 1)
}

// AddPin attaches block to net. Exactly one pin per net may be the driver.
func (n *Netlist) AddPin(net NetID, block BlockID, driver bool) (PinID, error) {
	if int(net) < 0 || int(net) >= len(n.nets) {
		return 0, ErrUnknownNet
	}
	if int(block) < 0 || int(block) >= len(n.blocks) {
		return 0, ErrUnknownBlock
	}
	if driver {
		for _, p := range n.nets[net].Pins {
			if n.pins[p].Driver {
				return 0, ErrDuplicateDriver
			}
		}
	}
	n.pins = append(n.pins, Pin{Net: net, Block: block, Driver: driver})
	id := PinID(len(n.pins) - 1)
	n.nets[net].Pins = append(n.nets[net].Pins, id)
	return id, nil
}

// SetIgnored marks a net as excluded from placement cost.
func (n *Netlist) SetIgnored(net NetID) error {
	if int(net) < 0 || int(net) >= len(n.nets) {
		return ErrUnknownNet
	}
	n.nets[net].Ignored = true
	return nil
}

// Finalize validates the netlist, auto-ignores nets with fewer than two
// distinct block endpoints, and builds the block→nets reverse index.
// The netlist is read-only afterwards.
func (n *Netlist) Finalize() error {
	n.blockNets = make([][]NetID, len(n.blocks))
	seen := make(map[BlockID]struct{})
	for i := range n.nets {
		net := &n.nets[i]
		if len(net.Pins) == 0 {
			return ErrEmptyNet
		}
		clear(seen)
		for _, p := range net.Pins {
			seen[n.pins[p].Block] = struct{}{}
		}
		// A net whose pins all land on one block cannot contribute wirelength.
		if len(seen) < 2 {
			net.Ignored = true
		}
		if net.Ignored {
			continue
		}
		for b := range seen {
			n.blockNets[b] = append(n.blockNets[b], NetID(i))
		}
	}
	n.finalized = true
	return nil
}

// NumBlocks returns the number of blocks in the arena.
func (n *Netlist) NumBlocks() int { return len(n.blocks) }

// NumNets returns the number of nets in the arena.
func (n *Netlist) NumNets() int { return len(n.nets) }

// Block returns the block record for a handle.
func (n *Netlist) Block(id BlockID) Block { return n.blocks[id] }

// Net returns the net record for a handle.
func (n *Netlist) Net(id NetID) Net { return n.nets[id] }

// Pin returns the pin record for a handle.
func (n *Netlist) Pin(id PinID) Pin { return n.pins[id] }

// Fanout returns the pin count of a net.
func (n *Netlist) Fanout(id NetID) int { return len(n.nets[id].Pins) }

// PinBlock returns the block attached to the i-th pin of net.
func (n *Netlist) PinBlock(net NetID, i int) BlockID {
	return n.pins[n.nets[net].Pins[i]].Block
}

// Driver returns the block driving net, or NoBlock if the net has no driver.
func (n *Netlist) Driver(net NetID) BlockID {
	for _, p := range n.nets[net].Pins {
		if n.pins[p].Driver {
			return n.pins[p].Block
		}
	}
	return NoBlock
}

// BlockNets returns the non-ignored nets touching a block. Only valid after
// Finalize. The returned slice is owned by the netlist and must not be
// mutated.
func (n *Netlist) BlockNets(id BlockID) []NetID { return n.blockNets[id] }

// MoveableBlocks returns the handles of all moveable blocks in arena order.
func (n *Netlist) MoveableBlocks() []BlockID {
	var out []BlockID
	for i, b := range n.blocks {
		if b.Moveable {
			out = append(out, BlockID(i))
		}
	}
	return out
}
