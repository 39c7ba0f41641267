package transform

import "sync"

// scriptCache is a concurrent identifier → scriptRecord mapping. Creation is
// atomic per identifier; distinct identifiers never contend. The cache never
// acquires a record's lock — locking is the caller's responsibility.
type scriptCache struct {
	entries sync.Map // string -> *scriptRecord
}

func newScriptCache() *scriptCache {
	return &scriptCache{}
}

// getOrCreate returns the record for uid, creating it if absent. Concurrent
// callers for the same uid receive the same record.
func (c *scriptCache) getOrCreate(uid string) *scriptRecord {
	if v, ok := c.entries.Load(uid); ok {
		return v.(*scriptRecord)
	}
	v, _ := c.entries.LoadOrStore(uid, newScriptRecord())
	return v.(*scriptRecord)
}

// get returns the record for uid, or nil if absent.
func (c *scriptCache) get(uid string) *scriptRecord {
	v, ok := c.entries.Load(uid)
	if !ok {
		return nil
	}
	return v.(*scriptRecord)
}

// remove deletes and returns the record for uid, or nil if absent.
func (c *scriptCache) remove(uid string) *scriptRecord {
	v, ok := c.entries.LoadAndDelete(uid)
	if !ok {
		return nil
	}
	return v.(*scriptRecord)
}

// drainAll removes and returns every record, leaving the cache empty. Used at
// shutdown.
func (c *scriptCache) drainAll() []*scriptRecord {
	var records []*scriptRecord
	c.entries.Range(func(key, value any) bool {
		if v, ok := c.entries.LoadAndDelete(key); ok {
			records = append(records, v.(*scriptRecord))
		}
		return true
	})
	return records
}
