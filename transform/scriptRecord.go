package transform

import (
	"sync"

	"github.com/robbyt/go-polytransform/platform"
)

// scriptRecord is the per-identifier cached state: the loaded script text, the
// engine handle, and the compiled form. All fields except mu are guarded by
// mu, which is held for the full load/compile/evaluate sequence of a call.
//
// Invariants: script is set at most once while non-empty; compiled is never
// set without script. Any text change requires disposing the whole record,
// never mutating it in place.
type scriptRecord struct {
	mu sync.Mutex

	script     string
	engine     platform.Engine
	engineName string
	compiled   platform.Compiled
}

func newScriptRecord() *scriptRecord {
	return &scriptRecord{}
}

// loaded reports whether script text has been resolved onto this record.
func (r *scriptRecord) loaded() bool {
	return r.script != ""
}

// setScript stores the script text. Once set, subsequent calls are no-ops for
// the lifetime of the record.
func (r *scriptRecord) setScript(script string) {
	if r.script != "" {
		return
	}
	r.script = script
}
