// Package sf is a typed wrapper around golang.org/x/sync/singleflight.
//
//	loads := sf.New[*es.Snapshot]()
//	snap, err, _ := loads.Do("Account-acct-1", func() (*es.Snapshot, error) {
//	    return backend.LoadSnapshot(ctx, "Account", "acct-1")
//	})
package sf
