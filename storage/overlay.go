package storage

// Overlay stages writes on top of a base database. Reads see the staged
// writes; the base stays untouched until Commit lands the whole set in one
// atomic batch. Discarding an overlay discards its writes.
type Overlay struct {
	base   Database
	writes map[string]overlayEntry
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// NewOverlay stages writes against the given base database.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, writes: make(map[string]overlayEntry)}
}

func (o *Overlay) Put(key, value []byte) error {
	o.writes[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if entry, ok := o.writes[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if entry, ok := o.writes[string(key)]; ok {
		return !entry.deleted, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.writes[string(key)] = overlayEntry{deleted: true}
	return nil
}

func (o *Overlay) NewBatch() Batch {
	return &overlayBatch{overlay: o}
}

// Close discards the staged writes without touching the base.
func (o *Overlay) Close() error {
	o.writes = make(map[string]overlayEntry)
	return nil
}

// Commit applies the staged writes to the base database in a single atomic
// batch and clears the stage. A failed commit leaves the base untouched.
func (o *Overlay) Commit() error {
	if len(o.writes) == 0 {
		return nil
	}
	batch := o.base.NewBatch()
	for key, entry := range o.writes {
		if entry.deleted {
			if err := batch.Delete([]byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := batch.Put([]byte(key), entry.value); err != nil {
			return err
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	o.writes = make(map[string]overlayEntry)
	return nil
}

type overlayBatch struct {
	overlay *Overlay
	ops     []batchOp
}

func (b *overlayBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, batchOp{key: string(key), value: append([]byte(nil), value...)})
	return nil
}

func (b *overlayBatch) Delete(key []byte) error {
	b.ops = append(b.ops, batchOp{key: string(key), deleted: true})
	return nil
}

func (b *overlayBatch) Write() error {
	for _, op := range b.ops {
		if op.deleted {
			b.overlay.writes[op.key] = overlayEntry{deleted: true}
			continue
		}
		b.overlay.writes[op.key] = overlayEntry{value: op.value}
	}
	return nil
}
