package flex

// ScaleDescription marks a kernel parameter slot that carries an entry's
// scale. Input slots receive the scale itself; output slots receive its
// reciprocal, which converts real results into storage integers.
type ScaleDescription struct {
	Entry    *Entry
	IsOutput bool
}

// Value returns the number to bind into the slot for the current scale.
func (d *ScaleDescription) Value() float64 {
	if d.IsOutput {
		return 1 / d.Entry.scale
	}
	return d.Entry.scale
}

// PtrDescription marks a kernel parameter slot that receives the entry's
// max-abs reporting slot in the device scale block.
type PtrDescription struct {
	Entry *Entry
}

// Slot resolves the reporting slot. Before allocation the zero slot is
// returned and reports are discarded.
func (d *PtrDescription) Slot() MaxAbsSlot {
	m := d.Entry.mgr
	if m.block == nil {
		return MaxAbsSlot{}
	}
	return m.block.Slot(d.Entry.id)
}
