package reactive

// Dep is the subscriber map of one reactive property: the effects that read
// it, each tagged with the run generation in which it last did so.
//
// Entries keep insertion order. Updating an existing entry keeps its
// position; removing and re-adding moves it to the end. When the last entry
// is removed the onEmpty hook detaches the Dep from its owner.
type Dep struct {
	key     string
	entries map[*Effect]*depEntry
	head    *depEntry
	tail    *depEntry
	onEmpty func()
}

type depEntry struct {
	effect *Effect
	gen    uint64
	prev   *depEntry
	next   *depEntry
}

func newDep(key string, onEmpty func()) *Dep {
	return &Dep{
		key:     key,
		entries: make(map[*Effect]*depEntry),
		onEmpty: onEmpty,
	}
}

// Key returns the property key this Dep belongs to.
func (d *Dep) Key() string {
	return d.key
}

// Len returns the number of subscribed effects.
func (d *Dep) Len() int {
	return len(d.entries)
}

func (d *Dep) get(e *Effect) (uint64, bool) {
	ent, ok := d.entries[e]
	if !ok {
		return 0, false
	}
	return ent.gen, true
}

func (d *Dep) set(e *Effect, gen uint64) {
	if ent, ok := d.entries[e]; ok {
		ent.gen = gen
		return
	}
	ent := &depEntry{effect: e, gen: gen, prev: d.tail}
	if d.tail != nil {
		d.tail.next = ent
	} else {
		d.head = ent
	}
	d.tail = ent
	d.entries[e] = ent
}

func (d *Dep) remove(e *Effect) {
	ent, ok := d.entries[e]
	if !ok {
		return
	}
	delete(d.entries, e)

	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		d.head = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		d.tail = ent.prev
	}
	ent.prev, ent.next = nil, nil

	if len(d.entries) == 0 && d.onEmpty != nil {
		d.onEmpty()
	}
}

// effects returns the subscribers in insertion order.
func (d *Dep) effects() []*Effect {
	out := make([]*Effect, 0, len(d.entries))
	for ent := d.head; ent != nil; ent = ent.next {
		out = append(out, ent.effect)
	}
	return out
}
