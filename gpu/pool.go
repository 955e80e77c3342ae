package gpu

import "fmt"

// Slot is one pooled device texture allocation. Slots are sized to the
// dataset's maximum block dimensions so any block fits any slot, which is
// what makes reuse trivial: eviction returns the slot, promotion reuses it,
// and no device storage is created or destroyed in the steady state.
type Slot struct {
	tex  TextureID
	dims [3]uint32
}

// Texture returns the device handle of the slot.
func (s *Slot) Texture() TextureID { return s.tex }

// Dims returns the voxel dimensions of the slot storage.
func (s *Slot) Dims() [3]uint32 { return s.dims }

// State computes the texture state for a block of blockDims voxels stored
// at the slot origin: the normalized coordinate range [0, block/slot).
func (s *Slot) State(blockDims [3]uint32) TextureState {
	state := TextureState{Texture: s.tex, VoxelDims: blockDims}
	for i := 0; i < 3; i++ {
		state.CoordsMin[i] = 0
		state.CoordsMax[i] = float32(blockDims[i]) / float32(s.dims[i])
	}
	return state
}

// TexturePool manages reusable device texture slots. Not safe for
// concurrent use; owned by the rendering thread (see package doc).
type TexturePool struct {
	device   Device
	slotDims [3]uint32
	format   TextureFormat
	maxSlots int

	free      []*Slot
	allocated int
}

// NewTexturePool creates a pool of slots sized slotDims (the dataset's
// maximum block dimensions). At most maxSlots slots are ever allocated;
// maxSlots <= 0 means no ceiling.
func NewTexturePool(device Device, slotDims [3]uint32, format TextureFormat, maxSlots int) *TexturePool {
	return &TexturePool{
		device:   device,
		slotDims: slotDims,
		format:   format,
		maxSlots: maxSlots,
	}
}

// SlotDims returns the voxel dimensions of every slot.
func (p *TexturePool) SlotDims() [3]uint32 { return p.slotDims }

// SlotBytes returns the device storage size of one slot.
func (p *TexturePool) SlotBytes() int64 {
	return int64(p.slotDims[0]) * int64(p.slotDims[1]) * int64(p.slotDims[2]) * p.format.BytesPerVoxel()
}

// Allocated returns how many slots exist, free or in use.
func (p *TexturePool) Allocated() int { return p.allocated }

// FreeSlots returns how many slots are immediately available.
func (p *TexturePool) FreeSlots() int { return len(p.free) }

// Acquire returns a free slot, allocating a new one if none is free and
// the ceiling permits. Returns ErrPoolExhausted otherwise.
func (p *TexturePool) Acquire() (*Slot, error) {
	if n := len(p.free); n > 0 {
		slot := p.free[n-1]
		p.free = p.free[:n-1]
		return slot, nil
	}

	if p.maxSlots > 0 && p.allocated >= p.maxSlots {
		return nil, ErrPoolExhausted
	}

	tex, err := p.device.CreateTexture3D(p.slotDims, p.format)
	if err != nil {
		return nil, fmt.Errorf("gpu: slot allocation: %w", err)
	}
	p.allocated++
	return &Slot{tex: tex, dims: p.slotDims}, nil
}

// Release returns a slot to the free set. The device storage survives for
// reuse by the next Acquire.
func (p *TexturePool) Release(slot *Slot) {
	if slot == nil {
		return
	}
	p.free = append(p.free, slot)
}

// Close destroys all free slots. Callers must have released every acquired
// slot first (the texture cache tier guarantees this by destroying its
// objects before closing the pool).
func (p *TexturePool) Close() error {
	var firstErr error
	for _, slot := range p.free {
		if err := p.device.DeleteTexture(slot.tex); err != nil && firstErr == nil {
			firstErr = err
		}
		p.allocated--
	}
	p.free = nil
	return firstErr
}
