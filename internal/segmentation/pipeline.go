// internal/segmentation/pipeline.go
package segmentation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/rmbg-service/internal/colors"
	"github.com/SyedDaiam9101/rmbg-service/internal/inference"
)

const tracerName = "github.com/SyedDaiam9101/rmbg-service/internal/segmentation"

// Observer is called once per Segment call with its metrics and outcome.
type Observer func(m Metrics, err error)

// Result is the output of a successful Segment call
type Result struct {
	// Image is the composited RGBA image, same size as the input
	Image *image.NRGBA
	// Background is the parsed background color, nil for transparent
	Background *colors.Color
	Metrics    Metrics
}

// Pipeline runs preprocess, inference, mask postprocessing and compositing
// against a shared engine. It keeps no state between calls.
type Pipeline struct {
	engine   inference.Engine
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used for stage timings and warnings
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver registers a callback invoked after every Segment call
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// New creates a Pipeline bound to engine. The engine is owned by the caller.
func New(engine inference.Engine, opts ...Option) (*Pipeline, error) {
	if engine == nil {
		return nil, stageError(KindModelLoad, StageInference, errors.New("inference engine not initialized"))
	}
	p := &Pipeline{
		engine: engine,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Engine returns the engine the pipeline runs against
func (p *Pipeline) Engine() inference.Engine {
	return p.engine
}

// Segment removes the background of img. An empty bgColor gives a transparent
// background; a malformed one is treated the same way and logged. The stages
// run to completion: ctx carries tracing only and is not used for cancellation.
func (p *Pipeline) Segment(ctx context.Context, img image.Image, bgColor string) (*Result, error) {
	start := time.Now()
	size := img.Bounds().Size()
	m := Metrics{ImageWidth: size.X, ImageHeight: size.Y}

	ctx, span := p.tracer.Start(ctx, "segmentation.Segment", trace.WithAttributes(
		attribute.Int("image.width", size.X),
		attribute.Int("image.height", size.Y),
	))
	defer span.End()

	res, err := p.segment(ctx, img, bgColor, start, &m)
	m.TotalTime = time.Since(start)

	if p.observer != nil {
		p.observer(m, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.Metrics = m
	p.logger.Debug("segmentation complete",
		zap.Int("width", size.X),
		zap.Int("height", size.Y),
		zap.Duration("preprocess", m.PreprocessTime),
		zap.Duration("inference", m.InferenceTime),
		zap.Duration("postprocess", m.PostprocessTime),
		zap.Duration("composite", m.CompositeTime),
		zap.Duration("total", m.TotalTime))

	return res, nil
}

func (p *Pipeline) segment(ctx context.Context, img image.Image, bgColor string, start time.Time, m *Metrics) (*Result, error) {
	var bg *colors.Color
	if bgColor != "" {
		if c, ok := colors.Parse(bgColor, true); ok {
			bg = &c
		} else {
			p.logger.Warn("unparsable background color, using transparent", zap.String("bg_color", bgColor))
		}
	}

	// 1. preprocess
	width, height := p.engine.InputSize()
	_, span := p.tracer.Start(ctx, "segmentation."+StagePreprocess)
	tensor, err := Preprocess(img, width, height)
	endSpan(span, err)
	m.PreprocessTime = time.Since(start)
	if err != nil {
		return nil, err
	}

	// 2. inference
	stageStart := time.Now()
	_, span = p.tracer.Start(ctx, "segmentation."+StageInference)
	outputs, err := p.infer(tensor)
	endSpan(span, err)
	m.InferenceTime = time.Since(stageStart)
	if err != nil {
		return nil, err
	}

	// 3. mask
	stageStart = time.Now()
	_, span = p.tracer.Start(ctx, "segmentation."+StagePostprocess)
	mask, err := PostprocessMask(outputs[0], m.ImageWidth, m.ImageHeight)
	endSpan(span, err)
	m.PostprocessTime = time.Since(stageStart)
	if err != nil {
		return nil, err
	}

	// 4. composite
	stageStart = time.Now()
	_, span = p.tracer.Start(ctx, "segmentation."+StageComposite)
	out, err := Composite(img, mask, bg)
	endSpan(span, err)
	m.CompositeTime = time.Since(stageStart)
	if err != nil {
		return nil, err
	}

	return &Result{Image: out, Background: bg}, nil
}

func (p *Pipeline) infer(tensor inference.Tensor) ([]inference.Tensor, error) {
	name := p.engine.InputName()
	outputs, err := p.engine.Run(map[string]inference.Tensor{name: tensor})
	if err != nil {
		kind := KindInference
		if errors.Is(err, inference.ErrNotLoaded) {
			kind = KindModelLoad
		}
		return nil, stageError(kind, StageInference, err)
	}
	if len(outputs) == 0 {
		return nil, stageError(KindInference, StageInference, fmt.Errorf("model returned no outputs"))
	}
	return outputs, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
