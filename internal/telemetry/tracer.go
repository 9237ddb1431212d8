package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for authority spans.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP = "client.ip"
	AttrHolder   = "mds.lease.holder"

	// ========================================================================
	// File and block attributes
	// ========================================================================
	AttrOperation = "mds.operation"
	AttrFileID    = "mds.file_id"
	AttrPath      = "mds.path"
	AttrBlockID   = "mds.block.id"
	AttrGenStamp  = "mds.block.gen_stamp"
	AttrLength    = "mds.block.length"

	// ========================================================================
	// Recovery attributes
	// ========================================================================
	AttrRecoveryTrigger = "mds.recovery.trigger"
	AttrRecoveryState   = "mds.recovery.state"
	AttrReplicas        = "mds.recovery.replicas"
	AttrAttempt         = "mds.recovery.attempt"

	// ========================================================================
	// Storage node attributes
	// ========================================================================
	AttrNodeID    = "mds.node.id"
	AttrStoreType = "mds.node.store_type"
)

// FileID returns a file identity attribute.
func FileID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrFileID, int64(id))
}

// Holder returns a lease holder attribute.
func Holder(h string) attribute.KeyValue {
	return attribute.String(AttrHolder, h)
}

// BlockID returns a block identifier attribute.
func BlockID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrBlockID, int64(id))
}

// GenStamp returns a generation stamp attribute.
func GenStamp(gs uint64) attribute.KeyValue {
	return attribute.Int64(AttrGenStamp, int64(gs))
}

// Length returns a block length attribute.
func Length(n int64) attribute.KeyValue {
	return attribute.Int64(AttrLength, n)
}

// NodeID returns a storage node attribute.
func NodeID(id string) attribute.KeyValue {
	return attribute.String(AttrNodeID, id)
}

// Replicas returns the number of replicas involved in a step.
func Replicas(n int) attribute.KeyValue {
	return attribute.Int(AttrReplicas, n)
}

// RecoveryState returns a recovery state attribute.
func RecoveryState(state string) attribute.KeyValue {
	return attribute.String(AttrRecoveryState, state)
}

// StartLeaseSpan starts a span for a client lease operation (open, sync, close).
func StartLeaseSpan(ctx context.Context, operation string, fileID uint64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(AttrOperation, operation),
		FileID(fileID),
	}, attrs...)
	return Tracer().Start(ctx, "lease."+operation,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(all...),
	)
}

// StartRecoverySpan starts a span covering one recovery attempt.
func StartRecoverySpan(ctx context.Context, trigger string, fileID, blockID uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "recovery.attempt",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrRecoveryTrigger, trigger),
			FileID(fileID),
			BlockID(blockID),
		),
	)
}

// StartNodeSpan starts a client span for a call to a storage node.
func StartNodeSpan(ctx context.Context, operation, nodeID string, blockID uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "node."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(NodeID(nodeID), BlockID(blockID)),
	)
}
