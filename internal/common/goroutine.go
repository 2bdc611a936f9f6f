// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected background work
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// backgroundCounter tracks detached units of work for diagnostics
var backgroundCounter int64

// GetBackgroundCount returns the number of units started via SafeGo
func GetBackgroundCount() int64 {
	return atomic.LoadInt64(&backgroundCounter)
}

// SafeGo runs fn in a goroutine with panic recovery.
// A recovered panic is logged and handed to onPanic (may be nil) as an error,
// so the owner can record the failure on its status record.
//
// Example:
//
//	common.SafeGo(logger, "referenceScan", func() {
//	    s.run(ctx, startedAt)
//	}, func(err error) {
//	    s.fail(err)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func(), onPanic func(error)) {
	atomic.AddInt64(&backgroundCounter, 1)

	go func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)

			if logger != nil {
				logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(buf[:n])).
					Msg("Recovered from panic in background task")
			}

			if onPanic != nil {
				onPanic(fmt.Errorf("panic in %s: %v", name, r))
			}
		}()

		fn()
	}()
}
