package lock

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSGateConfig configures the JetStream KV-backed Gate. This is
// rendezvous, not consensus: every worker talks
// to the same NATS deployment's KV bucket, so there is no cross-datacenter
// guarantee, only mutual exclusion among callers of that one store.
type NATSGateConfig struct {
	URL string // default nats.DefaultURL

	// Bucket is the JetStream KV bucket name. Default "statecraft-locks".
	Bucket string

	// TTL is the bucket's per-key time-to-live: a lock entry that is never
	// explicitly released (e.g. the holder crashed) still expires. Default
	// 2 * DefaultTimeout.
	TTL time.Duration

	// Timeout bounds Acquire's retry loop. Default DefaultTimeout.
	Timeout time.Duration

	// PollInterval controls how often a blocked Acquire retries the CAS
	// create. Default 25ms.
	PollInterval time.Duration
}

// NATSGate implements Gate using JetStream KV's Create (create-only put,
// i.e. compare-and-swap against "key absent") as the mutual-exclusion
// primitive, and the bucket's TTL as a dead-man's switch.
type NATSGate struct {
	kv           jetstream.KeyValue
	timeout      time.Duration
	pollInterval time.Duration
}

// NewNATSGate connects to NATS, ensures the KV bucket exists with the
// configured TTL, and returns a ready Gate.
func NewNATSGate(ctx context.Context, cfg NATSGateConfig) (*NATSGate, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "statecraft-locks"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * DefaultTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, err
	}
	return &NATSGate{kv: kv, timeout: timeout, pollInterval: poll}, nil
}

// Acquire repeatedly attempts a create-only Put (Create) of the lock key
// until it succeeds, the timeout elapses, or ctx is cancelled. Release
// deletes the key, allowing the next Acquire to succeed immediately rather
// than waiting out the TTL.
func (g *NATSGate) Acquire(ctx context.Context, rootEventID string) (func(), error) {
	name := kvSafeKey(lockName(rootEventID))
	deadline := time.Now().Add(g.timeout)
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		_, err := g.kv.Create(ctx, name, []byte("1"))
		if err == nil {
			released := false
			return func() {
				if released {
					return
				}
				released = true
				_ = g.kv.Delete(ctx, name)
			}, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, alreadyRunning(rootEventID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// kvSafeKey replaces the colon in "mre:<id>" (JetStream KV keys may not
// contain ':') with a dot, keeping the name recognisable in `nats kv` CLI
// output.
func kvSafeKey(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			out[i] = '.'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}
