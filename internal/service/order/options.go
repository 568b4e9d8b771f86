package order

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-lifecycle/internal/domain"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultStoreTimeout   = 5 * time.Second
)

// Recorder принимает метрики менеджера. *metrics.OrderMetrics удовлетворяет ему.
type Recorder interface {
	RecordMutation(operation string, err error)
	RecordPublishStarted()
	RecordPublishFinished(duration time.Duration, err error)
	RecordPublishSkipped()
}

// Options задаёт зависимости и таймауты Manager.
type Options struct {
	Logger         *log.Entry
	Clock          func() time.Time
	NewID          func() string
	PublishTimeout time.Duration
	StoreTimeout   time.Duration
	Transitions    domain.TransitionPolicy
	Metrics        Recorder
}

// Option настраивает Manager.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithIDGenerator подменяет генератор orderId.
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// WithPublishTimeout ограничивает фоновую публикацию события.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.PublishTimeout = timeout
	}
}

// WithStoreTimeout ограничивает каждый вызов хранилища.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.StoreTimeout = timeout
	}
}

// WithTransitions задаёт политику переходов статуса.
func WithTransitions(policy domain.TransitionPolicy) Option {
	return func(opts *Options) {
		opts.Transitions = policy
	}
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(recorder Recorder) Option {
	return func(opts *Options) {
		opts.Metrics = recorder
	}
}

func defaultOptions() Options {
	return Options{
		Logger:         log.WithField("component", "order-manager"),
		Clock:          time.Now,
		NewID:          uuid.NewString,
		PublishTimeout: defaultPublishTimeout,
		StoreTimeout:   defaultStoreTimeout,
		Transitions:    domain.PermissiveTransitions{},
		Metrics:        noopRecorder{},
	}
}

func (o *Options) normalize() {
	defaults := defaultOptions()
	if o.Logger == nil {
		o.Logger = defaults.Logger
	}
	if o.Clock == nil {
		o.Clock = defaults.Clock
	}
	if o.NewID == nil {
		o.NewID = defaults.NewID
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaults.PublishTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = defaults.StoreTimeout
	}
	if o.Transitions == nil {
		o.Transitions = defaults.Transitions
	}
	if o.Metrics == nil {
		o.Metrics = defaults.Metrics
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordMutation(string, error)               {}
func (noopRecorder) RecordPublishStarted()                      {}
func (noopRecorder) RecordPublishFinished(time.Duration, error) {}
func (noopRecorder) RecordPublishSkipped()                      {}
