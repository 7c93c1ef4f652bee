package util

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"
)

// StartTestNATS boots an in-process NATS server with JetStream enabled on a
// random port, shuts it down on test cleanup, and returns its client URL.
// One server per test: JetStream stream/KV names are shared constants
// across this module's packages, so tests cannot safely share a server.
func StartTestNATS(t *testing.T) string {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded nats server did not become ready in time")
	}
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}
