// Package resource provides opaque handle tables for host-owned resources.
//
// A guest never sees host pointers. Every host object it may refer to lives
// in a Table and is named by a Handle, a small integer that is unique among
// the live handles of one table. Each resource kind gets its own table, so a
// handle of one kind can never resolve to a value of another kind.
//
// # Handle Table
//
// The Table maps integer handles to Go values:
//
//	options := resource.NewTable[*Options](resource.KindOptions, 0)
//
//	// Insert a value, get a handle
//	h, err := options.Insert(opts)
//
//	// Retrieve value by handle
//	opts, err := options.Get(h)
//
//	// Tombstone the handle and drop the value
//	opts, err := options.Remove(h)
//
// Handle 0 is never issued. Removed slots go on a free list and are reused,
// so a handle value may come back after it was closed. Lookups of unknown,
// removed or zero handles fail with an invalid_handle error.
//
// Tables are bounded: once the live handle count reaches the limit, Insert
// fails with a resource_exhausted error until a handle is removed.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %d %s (%d live)", e.Kind, e.Handle, e.Type, e.Live)
//	}))
//
// # Memory Management
//
// Resources are not garbage collected. The guest must close what it opens;
// the host calls Close on the table at shutdown to drop whatever is left.
// Values implementing Dropper are dropped after their handle is released.
package resource
