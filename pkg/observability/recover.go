package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. Call it deferred:
//
//	defer observability.RecoverPanic(logger, "purge expired invites", nil)
//
// onPanic, when set, runs after logging. The panic is not re-raised.
func RecoverPanic(logger *Logger, where string, onPanic func(recovered any)) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]any{
			"panic":   fmt.Sprint(r),
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
		if onPanic != nil {
			onPanic(r)
		}
	}
}
