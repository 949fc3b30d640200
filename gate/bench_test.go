package gate

import (
	"context"
	"strconv"
	"testing"
)

func BenchmarkBlocker_EvaluateAllowed(b *testing.B) {
	blocker := benchBlocker(b)
	state := cleanEntity("bench")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		blocker.Evaluate(ctx, state, "payment")
	}
}

func BenchmarkBlocker_EvaluateBlocked(b *testing.B) {
	blocker := benchBlocker(b)
	state := cleanEntity("bench")
	state.Reputation = 0.1
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		blocker.Evaluate(ctx, state, "payment")
	}
}

func BenchmarkAuditLog_Append(b *testing.B) {
	log := NewAuditLog(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Append(newEvaluation("e"+strconv.Itoa(i%100), "payment", false, nil, nil))
	}
}

func benchBlocker(b *testing.B) *Blocker {
	b.Helper()
	reg := NewPolicyRegistry()
	if err := reg.Register(validPolicy()); err != nil {
		b.Fatal(err)
	}
	return NewBlocker(BlockerConfig{Policies: reg})
}
