package docvalue

import "sort"

// Member is one (key, value) pair of an object.
type Member struct {
	Key   string
	Value *Value
}

// Object is an ordered collection of members. Two ordering policies are
// supported: insertion order (the default) and sorted-by-key. Both are
// last-write-wins on duplicate keys.
type Object struct {
	members []Member
	sorted  bool
}

// NewObject returns an empty insertion-ordered object.
func NewObject() *Object {
	return &Object{}
}

// NewSortedObject returns an empty object that keeps its members sorted by
// key.
func NewSortedObject() *Object {
	return &Object{sorted: true}
}

// Sorted reports the ordering policy.
func (o *Object) Sorted() bool { return o.sorted }

// Len returns the member count.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.members)
}

// Set inserts or replaces the member with the given key.
func (o *Object) Set(key string, v *Value) {
	if o.sorted {
		i := sort.Search(len(o.members), func(i int) bool {
			return o.members[i].Key >= key
		})
		if i < len(o.members) && o.members[i].Key == key {
			o.members[i].Value = v
			return
		}
		o.members = append(o.members, Member{})
		copy(o.members[i+1:], o.members[i:])
		o.members[i] = Member{Key: key, Value: v}
		return
	}
	for i := range o.members {
		if o.members[i].Key == key {
			o.members[i].Value = v
			return
		}
	}
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Get returns the member value for key.
func (o *Object) Get(key string) (*Value, bool) {
	if o == nil {
		return nil, false
	}
	if o.sorted {
		i := sort.Search(len(o.members), func(i int) bool {
			return o.members[i].Key >= key
		})
		if i < len(o.members) && o.members[i].Key == key {
			return o.members[i].Value, true
		}
		return nil, false
	}
	for i := range o.members {
		if o.members[i].Key == key {
			return o.members[i].Value, true
		}
	}
	return nil, false
}

// Members returns the members in policy order. The slice is the object's
// own backing storage; callers must not modify it.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	return o.members
}

// Equal reports member-wise equality. Ordering policy is not part of
// equality: an insertion-ordered object equals a sorted object holding the
// same members, member order notwithstanding.
func (o *Object) Equal(p *Object) bool {
	if o.Len() != p.Len() {
		return false
	}
	for _, m := range o.members {
		pv, ok := p.Get(m.Key)
		if !ok || !m.Value.Equal(pv) {
			return false
		}
	}
	return true
}
