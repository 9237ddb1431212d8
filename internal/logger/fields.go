package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Files & Leases
	// ========================================================================
	KeyFileID       = "file_id"       // Stable file identity
	KeyPath         = "path"          // Namespace path (informational only)
	KeyOldPath      = "old_path"      // Source path for rename operations
	KeyNewPath      = "new_path"      // Destination path for rename operations
	KeyHolder       = "holder"        // Lease holder name
	KeyEpoch        = "epoch"         // Namespace binding epoch
	KeySessionState = "session_state" // UNDER_CONSTRUCTION, COMMITTED, COMPLETE

	// ========================================================================
	// Blocks & Replicas
	// ========================================================================
	KeyBlockID      = "block_id"      // Immutable block identifier
	KeyGenStamp     = "gen_stamp"     // Block generation stamp
	KeyLength       = "length"        // Block length in bytes
	KeyNodeID       = "node_id"       // Storage node identifier
	KeyReplicaState = "replica_state" // RBW, FINALIZED
	KeyReplicas     = "replicas"      // Number of replicas involved

	// ========================================================================
	// Recovery
	// ========================================================================
	KeyRecoveryState = "recovery_state" // STARTED ... FINALIZED, FAILED
	KeyTrigger       = "trigger"        // close_conflict, hard_expiry, admin
	KeyAttempt       = "attempt"        // Retry attempt number
	KeyMaxAttempts   = "max_attempts"   // Maximum retry attempts

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Operation name
	KeyClientIP   = "client_ip"   // Client IP address
	KeyRequestID  = "request_id"  // HTTP request ID
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Domain error code
	KeyStoreType  = "store_type"  // Replica store type: memory, badger
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// FileID returns a slog.Attr for a file identity
func FileID(id uint64) slog.Attr {
	return slog.Uint64(KeyFileID, id)
}

// Holder returns a slog.Attr for a lease holder
func Holder(h string) slog.Attr {
	return slog.String(KeyHolder, h)
}

// BlockID returns a slog.Attr for a block identifier
func BlockID(id uint64) slog.Attr {
	return slog.Uint64(KeyBlockID, id)
}

// GenStamp returns a slog.Attr for a generation stamp
func GenStamp(gs uint64) slog.Attr {
	return slog.Uint64(KeyGenStamp, gs)
}

// Length returns a slog.Attr for a block length
func Length(n int64) slog.Attr {
	return slog.Int64(KeyLength, n)
}

// NodeID returns a slog.Attr for a storage node
func NodeID(id string) slog.Attr {
	return slog.String(KeyNodeID, id)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
