package livre

import (
	"github.com/JamesLinus/livre/render"
	"github.com/JamesLinus/livre/resource"
)

type options struct {
	dataBudget       int64
	textureBudget    int64
	decodeWorkers    int
	decodeQueueDepth int
	texturePoolSlots int
	blendOrder       render.BlendOrder
	selector         render.Selector
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Streamer construction.
type Option func(*options)

// WithDataBudget bounds the host memory the decode tier may hold, in
// bytes. Must cover at least one block.
func WithDataBudget(bytes int64) Option {
	return func(o *options) {
		o.dataBudget = bytes
	}
}

// WithTextureBudget bounds the device memory the texture tier may hold, in
// bytes. Must cover at least one pool slot.
func WithTextureBudget(bytes int64) Option {
	return func(o *options) {
		o.textureBudget = bytes
	}
}

// WithDecodeWorkers sets the number of decode goroutines.
// Defaults to GOMAXPROCS.
func WithDecodeWorkers(workers int) Option {
	return func(o *options) {
		o.decodeWorkers = workers
	}
}

// WithDecodeQueueDepth bounds pending decodes. A full queue makes block
// requests report not-ready instead of queueing without bound.
// Defaults to twice the worker count.
func WithDecodeQueueDepth(depth int) Option {
	return func(o *options) {
		o.decodeQueueDepth = depth
	}
}

// WithTexturePoolSlots caps the number of device texture slots ever
// allocated. Defaults to the slot count the texture budget can hold.
func WithTexturePoolSlots(slots int) Option {
	return func(o *options) {
		o.texturePoolSlots = slots
	}
}

// WithBlendOrder sets the compositing order of frame bricks.
// Defaults to front-to-back.
func WithBlendOrder(order render.BlendOrder) Option {
	return func(o *options) {
		o.blendOrder = order
	}
}

// WithSelector sets the per-frame visibility driver.
// Defaults to rendering the coarsest level.
func WithSelector(s render.Selector) Option {
	return func(o *options) {
		if s != nil {
			o.selector = s
		}
	}
}

// WithResourceController attaches a process-wide resource controller that
// tracks the decode tier's resident bytes and bounds backend fetch
// concurrency alongside other consumers.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// decode, upload and frame timing. Pass nil to disable metrics collection.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metricsCollector = collector
	}
}

// WithLogger configures structured logging. Pass nil to keep the default
// text logger.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
