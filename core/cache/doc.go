// Package cache provides a small generic cache interface with an LRU
// implementation supporting per-entry TTLs.
//
//	snaps := cache.NewLRU[*es.Snapshot](cache.LRUOpts{Size: 1000})
//	snaps.Put("Account-acct-1", snap, cache.WithTTL(5*time.Minute))
//	if snap, ok := snaps.Get("Account-acct-1"); ok {
//	    // use snap
//	}
//
// [Nop] satisfies [Cache] without storing anything, for disabling caching.
package cache
