package durable_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cellbridge/sms-bridge/internal/queue/durable"
	"github.com/stretchr/testify/require"
)

// These tests exercise the real go-redis client against a live server and
// are skipped unless DURABLE_TEST_REDIS_ADDR is set, the same opt-in
// pattern spec §13 uses for the durable store itself (never consulted by
// default, only when an operator configures it).
func requireRedisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("DURABLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DURABLE_TEST_REDIS_ADDR not set, skipping live Redis dedup test")
	}
	return addr
}

func TestMarkIfNewClaimsOnlyOnce(t *testing.T) {
	addr := requireRedisAddr(t)

	store, err := durable.New(context.Background(), durable.Config{Addr: addr, Prefix: "sms-bridge-test", TTL: time.Minute})
	require.NoError(t, err)
	defer store.Close()

	first, err := store.MarkIfNew(context.Background(), "sms-dup-test")
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.MarkIfNew(context.Background(), "sms-dup-test")
	require.NoError(t, err)
	require.False(t, second)
}
