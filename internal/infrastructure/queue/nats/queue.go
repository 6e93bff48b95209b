package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/keyword-intel/internal/infrastructure/resilience"
)

const workerQueueGroup = "clustering-workers"

type Subjects struct {
	ClusteringRequested string
	ResearchInvalidated string
}

func DefaultSubjects() Subjects {
	return Subjects{
		ClusteringRequested: "research.clustering.requested",
		ResearchInvalidated: "research.invalidated",
	}
}

type Queue struct {
	conn       *nats.Conn
	subjects   Subjects
	executor   *resilience.Executor
	jobTimeout time.Duration
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// JobTimeout bounds one handler invocation; zero means no extra bound.
	JobTimeout time.Duration
}

func New(url string, subjects Subjects, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	defaults := DefaultSubjects()
	if subjects.ClusteringRequested == "" {
		subjects.ClusteringRequested = defaults.ClusteringRequested
	}
	if subjects.ResearchInvalidated == "" {
		subjects.ResearchInvalidated = defaults.ResearchInvalidated
	}

	conn, err := nats.Connect(
		url,
		nats.Name("keyword-intel"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subjects:   subjects,
		executor:   options.ResilienceExecutor,
		jobTimeout: options.JobTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishClusteringRequested(ctx context.Context, researchID string) error {
	return q.publish(ctx, q.subjects.ClusteringRequested, researchID, "nats publish clustering")
}

func (q *Queue) PublishResearchInvalidated(ctx context.Context, researchID string) error {
	return q.publish(ctx, q.subjects.ResearchInvalidated, researchID, "nats publish invalidation")
}

func (q *Queue) publish(ctx context.Context, subject, researchID, operation string) error {
	if strings.TrimSpace(researchID) == "" {
		return fmt.Errorf("%s: empty research id", operation)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, []byte(researchID)); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

// SubscribeClusteringRequested consumes clustering jobs in the worker queue
// group until ctx is canceled, then drains in-flight messages.
func (q *Queue) SubscribeClusteringRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subjects.ClusteringRequested, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := q.jobContext(ctx)
		defer cancel()
		researchID := string(msg.Data)
		if err := handler(handlerCtx, researchID); err != nil {
			slog.Error("clustering_job_failed", "research_id", researchID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) jobContext(parent context.Context) (context.Context, context.CancelFunc) {
	if q.jobTimeout > 0 {
		return context.WithTimeout(parent, q.jobTimeout)
	}
	return context.WithCancel(parent)
}
