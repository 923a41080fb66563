package channel

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCapacity is the capacity of a channel created by the service.
const DefaultCapacity = 1024

// Option configures a ByteChannel.
type Option func(*options)

type options struct {
	storage     Storage
	policy      NotifyPolicy
	logger      *slog.Logger
	metricsReg  prometheus.Registerer
	metricsName string
}

// WithStorage selects the backing store of the buffer. Defaults to StorageHeap.
func WithStorage(s Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithNotifyPolicy decides which successful writes notify subscribers.
// Defaults to NotifyEveryWrite.
func WithNotifyPolicy(p NotifyPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics exposes channel statistics as Prometheus metrics. The name ends
// up in the "channel" label. Ignored if reg is nil or name is empty.
func WithMetrics(reg prometheus.Registerer, name string) Option {
	return func(o *options) {
		if reg != nil && name != "" {
			o.metricsReg = reg
			o.metricsName = name
		}
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		storage: StorageHeap,
		policy:  NotifyEveryWrite,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}
