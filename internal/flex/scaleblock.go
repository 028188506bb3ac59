package flex

import (
	"math"
	"unsafe"
)

// slotWidth is the number of float32 words per entry: scale, then max-abs.
const slotWidth = 2

// ScaleBlock is the device-side scale storage. It holds one (scale, max-abs)
// pair per entry, indexed by entry id. Kernels receive a MaxAbsSlot into it
// through flex pointer parameters.
type ScaleBlock struct {
	mem     []byte
	words   []float32
	mmapped bool
}

func newScaleBlock(entries int) (*ScaleBlock, error) {
	size := entries * slotWidth * 4
	if size == 0 {
		return &ScaleBlock{}, nil
	}
	mem, mmapped, err := mapBlock(size)
	if err != nil {
		return nil, err
	}
	words := unsafe.Slice((*float32)(unsafe.Pointer(&mem[0])), entries*slotWidth)
	return &ScaleBlock{mem: mem, words: words, mmapped: mmapped}, nil
}

// Len returns the number of entry slots.
func (b *ScaleBlock) Len() int { return len(b.words) / slotWidth }

// Bytes returns the size of the block in bytes.
func (b *ScaleBlock) Bytes() int { return len(b.mem) }

func (b *ScaleBlock) setScale(id int, scale float64) {
	b.words[id*slotWidth] = float32(scale)
}

// Scale returns the published device scale for an entry id.
func (b *ScaleBlock) Scale(id int) float32 { return b.words[id*slotWidth] }

// Slot returns the max-abs reporting slot for an entry id.
func (b *ScaleBlock) Slot(id int) MaxAbsSlot {
	return MaxAbsSlot{block: b, id: id}
}

func (b *ScaleBlock) takeMaxAbs(id int) float64 {
	i := id*slotWidth + 1
	v := b.words[i]
	b.words[i] = 0
	return float64(v)
}

func (b *ScaleBlock) release() error {
	if b == nil || b.mem == nil {
		return nil
	}
	var err error
	if b.mmapped {
		err = unmapBlock(b.mem)
	}
	b.mem = nil
	b.words = nil
	b.mmapped = false
	return err
}

// MaxAbsSlot is a handle into the scale block through which a kernel reports
// the largest integer magnitude it stored. The zero value discards reports.
type MaxAbsSlot struct {
	block *ScaleBlock
	id    int
}

// Report raises the slot to v if v is larger than what it already holds.
func (s MaxAbsSlot) Report(v int64) {
	if s.block == nil || s.block.words == nil {
		return
	}
	i := s.id*slotWidth + 1
	f := float32(math.Abs(float64(v)))
	if f > s.block.words[i] {
		s.block.words[i] = f
	}
}

// Valid reports whether the slot is bound to allocated storage.
func (s MaxAbsSlot) Valid() bool { return s.block != nil && s.block.words != nil }
