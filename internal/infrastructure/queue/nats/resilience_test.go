package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled},
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "connection closed", err: nats.ErrConnectionClosed, retryable: true, record: true},
		{name: "bad subject", err: nats.ErrBadSubject, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyNATSError(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("classifyNATSError(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded("nats publish clustering", nats.ErrNoServers)
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrNoServers) {
		t.Fatalf("expected temporary wrap preserving cause, got %v", err)
	}
	if err := wrapTemporaryIfNeeded("nats publish clustering", nats.ErrBadSubject); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad subject must not be temporary")
	}
}

func TestJobContextAppliesTimeout(t *testing.T) {
	q := &Queue{jobTimeout: time.Minute}
	ctx, cancel := q.jobContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected deadline on job context")
	}

	q = &Queue{}
	ctx2, cancel2 := q.jobContext(context.Background())
	defer cancel2()
	if _, ok := ctx2.Deadline(); ok {
		t.Fatalf("expected no deadline without job timeout")
	}
}
