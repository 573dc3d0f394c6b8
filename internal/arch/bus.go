package arch

import "fmt"

// SRAMBase is where the first mapped region starts.
const SRAMBase uint32 = 0x20000000

// MaxRegions bounds the number of word buffers the bus can map.
const MaxRegions = 16

// Memory is word-addressed storage as seen by the frame builder.
type Memory interface {
	Load(addr uint32) (uint32, error)
	Store(addr, v uint32) error
}

type region struct {
	base  uint32
	words []uint32
}

// Bus maps statically allocated word buffers into a flat 32-bit address
// space. Regions are laid out back to back with no guard between them: a
// stack that overflows writes into the region below it undetected.
type Bus struct {
	regions [MaxRegions]region
	n       int
	next    uint32
}

func NewBus() *Bus {
	return &Bus{next: SRAMBase}
}

// Map places words at the next free address and returns its base.
func (b *Bus) Map(words []uint32) (uint32, error) {
	if b.n == MaxRegions {
		return 0, ErrTooManyRegions
	}
	if len(words) == 0 {
		return 0, ErrEmptyRegion
	}

	base := b.next
	b.regions[b.n] = region{base: base, words: words}
	b.n++
	b.next += uint32(len(words)) * 4
	return base, nil
}

// Region returns the index of the region containing addr.
func (b *Bus) Region(addr uint32) (int, bool) {
	for i := 0; i < b.n; i++ {
		r := &b.regions[i]
		if addr >= r.base && addr < r.base+uint32(len(r.words))*4 {
			return i, true
		}
	}
	return -1, false
}

// Top returns the address one past the end of region i, i.e. the initial
// value of a full-descending stack living there.
func (b *Bus) Top(i int) uint32 {
	r := &b.regions[i]
	return r.base + uint32(len(r.words))*4
}

func (b *Bus) word(addr uint32) (*uint32, error) {
	if addr&3 != 0 {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnaligned, addr)
	}
	i, ok := b.Region(addr)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%08x", ErrBusFault, addr)
	}
	r := &b.regions[i]
	return &r.words[(addr-r.base)/4], nil
}

func (b *Bus) Load(addr uint32) (uint32, error) {
	w, err := b.word(addr)
	if err != nil {
		return 0, err
	}
	return *w, nil
}

func (b *Bus) Store(addr, v uint32) error {
	w, err := b.word(addr)
	if err != nil {
		return err
	}
	*w = v
	return nil
}
