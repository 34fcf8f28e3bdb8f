// Package pipeline orchestrates one aggregation run: fetch every source,
// assemble the aggregate, deliver it and fall back to durable storage when
// delivery fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/profile-aggregator/internal/clock/system"
	"github.com/JakeFAU/profile-aggregator/internal/config"
	"github.com/JakeFAU/profile-aggregator/internal/delivery"
	"github.com/JakeFAU/profile-aggregator/internal/logging"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
	"github.com/JakeFAU/profile-aggregator/internal/source"
	"github.com/JakeFAU/profile-aggregator/internal/telemetry"
)

// ErrRunInProgress is returned when Run is called while another run holds
// the pipeline. Runs share one fallback file, so they never overlap.
var ErrRunInProgress = errors.New("a run is already in progress")

const sideEffectTimeout = 10 * time.Second

// Submitter delivers an aggregate downstream.
type Submitter interface {
	Submit(ctx context.Context, agg profile.Aggregate) (delivery.Receipt, error)
}

// Persister writes an aggregate to fallback storage.
type Persister interface {
	Persist(ctx context.Context, agg profile.Aggregate) (string, error)
}

// Options wires the optional collaborators of a Pipeline.
type Options struct {
	Mode        string
	Concurrency int
	Topic       string
	Clock       profile.Clock
	IDs         profile.IDGenerator
	Recorder    profile.RunRecorder
	Publisher   profile.Publisher
	Logger      *zap.Logger
}

// Pipeline runs the fetch, assemble, deliver, fallback sequence.
type Pipeline struct {
	sources     []source.Source
	submitter   Submitter
	persister   Persister
	mode        string
	concurrency int
	topic       string
	clock       profile.Clock
	ids         profile.IDGenerator
	recorder    profile.RunRecorder
	publisher   profile.Publisher
	logger      *zap.Logger

	running sync.Mutex
}

// New builds a Pipeline over the registry's sources.
func New(reg *source.Registry, submitter Submitter, persister Persister, opts Options) (*Pipeline, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("delivery submitter is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("fallback persister is required")
	}
	if opts.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	p := &Pipeline{
		sources:     reg.Sources(),
		submitter:   submitter,
		persister:   persister,
		mode:        opts.Mode,
		concurrency: opts.Concurrency,
		topic:       opts.Topic,
		clock:       opts.Clock,
		ids:         opts.IDs,
		recorder:    opts.Recorder,
		publisher:   opts.Publisher,
		logger:      opts.Logger,
	}
	switch p.mode {
	case "":
		p.mode = config.ModeFailFast
	case config.ModeFailFast, config.ModeBestEffort:
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", p.mode)
	}
	if p.concurrency <= 0 || p.concurrency > len(p.sources) {
		p.concurrency = len(p.sources)
	}
	if p.clock == nil {
		p.clock = system.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p, nil
}

// Run executes one aggregation run. The returned error is non-nil only for
// aborted and failed runs; a delivery failure recovered by the fallback is
// reported through the result.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	if !p.running.TryLock() {
		return RunResult{}, ErrRunInProgress
	}
	defer p.running.Unlock()

	runID, err := p.ids.NewID()
	if err != nil {
		return RunResult{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", p.mode),
	))
	defer span.End()

	logger := logging.ForRun(p.logger, runID)
	result := RunResult{RunID: runID, Mode: p.mode, StartedAt: p.clock.Now()}
	logger.Info("run started", zap.Int("sources", len(p.sources)), zap.String("mode", p.mode))

	p.enter(&result, logger, profile.StateFetching)
	parts, failures, err := p.fetch(ctx)
	result.FailedSources = failures
	if err != nil {
		return p.finish(ctx, span, logger, result, profile.OutcomeAborted, err)
	}

	p.enter(&result, logger, profile.StateAssembling)
	agg, err := p.assemble(parts)
	if err != nil {
		return p.finish(ctx, span, logger, result, profile.OutcomeFailed, err)
	}
	result.Aggregate = &agg

	p.enter(&result, logger, profile.StateDelivering)
	receipt, deliveryErr := p.submitter.Submit(ctx, agg)
	result.DeliveryStatus = receipt.Status
	result.DeliveryBody = receipt.Body
	if deliveryErr == nil {
		return p.finish(ctx, span, logger, result, profile.OutcomeDelivered, nil)
	}
	logger.Warn("delivery failed, falling back", zap.Error(deliveryErr))

	p.enter(&result, logger, profile.StateFallingBack)
	uri, persistErr := p.persister.Persist(context.WithoutCancel(ctx), agg)
	if persistErr != nil {
		return p.finish(ctx, span, logger, result, profile.OutcomeFailed, errors.Join(deliveryErr, persistErr))
	}
	result.FallbackURI = uri
	return p.finish(ctx, span, logger, result, profile.OutcomeFallback, deliveryErr)
}

func (p *Pipeline) enter(result *RunResult, logger *zap.Logger, state profile.State) {
	result.States = append(result.States, state)
	logger.Debug("run state", zap.String("state", string(state)))
}

// fetch runs every source with bounded parallelism. In fail-fast mode the
// first failure cancels the rest and is returned; in best-effort mode every
// source finishes and the run only fails when no source succeeded.
func (p *Pipeline) fetch(ctx context.Context) ([]profile.Part, []profile.SourceFailure, error) {
	parts := make([]profile.Part, len(p.sources))
	errs := make([]error, len(p.sources))

	if p.mode == config.ModeFailFast {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i, src := range p.sources {
			g.Go(func() error {
				part, err := src.Fetch(gctx)
				if err != nil {
					return profile.AsFetchError(src.Name(), err)
				}
				parts[i] = part
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			fe := profile.AsFetchError("", err)
			return nil, []profile.SourceFailure{fe.Failure()}, fe
		}
		return parts, nil, nil
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, src := range p.sources {
		g.Go(func() error {
			part, err := src.Fetch(ctx)
			if err != nil {
				errs[i] = profile.AsFetchError(src.Name(), err)
				return nil
			}
			parts[i] = part
			return nil
		})
	}
	_ = g.Wait()

	var failures []profile.SourceFailure
	var failed []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures = append(failures, profile.AsFetchError("", err).Failure())
		failed = append(failed, err)
	}
	if len(failed) == len(p.sources) {
		return nil, failures, fmt.Errorf("all %d sources failed: %w", len(failed), errors.Join(failed...))
	}
	return parts, failures, nil
}

func (p *Pipeline) assemble(parts []profile.Part) (profile.Aggregate, error) {
	if p.mode == config.ModeBestEffort {
		return profile.AssemblePartial(parts...), nil
	}
	return profile.Assemble(parts...)
}

func (p *Pipeline) finish(
	ctx context.Context,
	span trace.Span,
	logger *zap.Logger,
	result RunResult,
	outcome profile.Outcome,
	err error,
) (RunResult, error) {
	result.States = append(result.States, profile.StateDone)
	result.Outcome = outcome
	result.FinishedAt = p.clock.Now()
	result.err = err
	if err != nil {
		result.Error = err.Error()
	}

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	telemetry.ObserveRun(string(outcome))

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if p.recorder != nil {
		if recErr := p.recorder.RecordRun(sideCtx, result.Record()); recErr != nil {
			logger.Error("record run failed", zap.Error(recErr))
		}
	}
	if p.publisher != nil {
		if _, pubErr := p.publisher.Publish(sideCtx, p.topic, result.notification()); pubErr != nil {
			logger.Warn("publish run notification failed", zap.Error(pubErr))
		}
	}

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
		zap.Int("failed_sources", len(result.FailedSources)),
	}
	switch outcome {
	case profile.OutcomeDelivered:
		logger.Info("run finished", fields...)
		return result, nil
	case profile.OutcomeFallback:
		logger.Warn("run finished", append(fields, zap.String("fallback_uri", result.FallbackURI), zap.Error(err))...)
		return result, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
		logger.Error("run finished", append(fields, zap.Error(err))...)
		return result, err
	}
}
