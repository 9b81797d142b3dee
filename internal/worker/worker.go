// Package worker consumes extracted batches from the event bus and runs them
// through the evaluation pipeline: profile engine, persistence, cache warmup,
// file export and result publication.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/export"
	"github.com/senna-project/senninha/internal/profile"
)

// EngineVersion is stamped into evaluation metadata.
const EngineVersion = "senninha/1.0"

// Worker processes extracted batches asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	engine   *profile.Engine
	exporter *export.Exporter
	logger   *slog.Logger

	summaryTTL time.Duration

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// SummaryTTL is how long evaluated client summaries stay cached.
	SummaryTTL time.Duration
}

// NewWorker creates a new async worker. Repository, cache and exporter are
// optional; nil disables the corresponding pipeline stage.
func NewWorker(
	bus domain.EventBus,
	repo domain.Repository,
	cache domain.Cache,
	engine *profile.Engine,
	exporter *export.Exporter,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		repo:       repo,
		cache:      cache,
		engine:     engine,
		exporter:   exporter,
		logger:     logger,
		summaryTTL: time.Hour,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the extracted-batch topic.
func (w *Worker) Start(cfg Config) error {
	if cfg.SummaryTTL > 0 {
		w.summaryTTL = cfg.SummaryTTL
	}

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchExtracted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started", "topic", domain.TopicBatchExtracted)
	return nil
}

// BatchMessage is the payload published by the extractor (or the API) when a
// batch is ready for evaluation.
type BatchMessage struct {
	BatchID string            `json:"batchId"`
	TraceID string            `json:"traceId,omitempty"`
	Lines   []domain.DebtLine `json:"dividas"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var batchMsg BatchMessage
	if err := json.Unmarshal(msg.Payload, &batchMsg); err != nil {
		w.logger.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if batchMsg.BatchID == "" {
		batchMsg.BatchID = uuid.New().String()
	}
	traceID := batchMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	_, err := w.ProcessBatch(ctx, traceID, &domain.Batch{
		ID:    batchMsg.BatchID,
		Lines: batchMsg.Lines,
	})
	return err
}

// ProcessBatch runs one batch through the full pipeline and returns the
// persisted evaluation. Persistence and export failures after a successful
// evaluation are logged, not returned: results already computed still flow to
// the remaining stages.
func (w *Worker) ProcessBatch(ctx context.Context, traceID string, batch *domain.Batch) (*domain.Evaluation, error) {
	start := time.Now()

	w.logger.Debug("processing batch",
		"batch_id", batch.ID,
		"lines", len(batch.Lines),
		"trace_id", traceID,
	)

	evalStart := time.Now()
	result, err := w.engine.EvaluateBatch(ctx, batch)
	if err != nil {
		w.logger.Error("batch evaluation failed",
			"batch_id", batch.ID,
			"error", err,
		)
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	evalMs := time.Since(evalStart).Milliseconds()

	evaluation := &domain.Evaluation{
		ID:        uuid.New().String(),
		BatchID:   batch.ID,
		Timestamp: time.Now().UTC(),
		Lines:     result.Lines,
		Summaries: result.Summaries,
		Metadata: domain.EvaluationMetadata{
			TraceID:          traceID,
			LinesEvaluated:   len(result.Lines),
			ClientsEvaluated: len(result.Summaries),
			CustomRules:      len(result.RuleHits),
			EvalMs:           evalMs,
			EngineVersion:    EngineVersion,
		},
	}

	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, evaluation); err != nil {
			w.logger.Error("failed to save evaluation",
				"batch_id", batch.ID,
				"error", err,
			)
		}
		for i := range result.Summaries {
			if err := w.repo.SaveClientSummary(ctx, &result.Summaries[i]); err != nil {
				w.logger.Error("failed to save client summary",
					"nif", result.Summaries[i].TaxID,
					"error", err,
				)
			}
		}
	}

	if w.cache != nil {
		for i := range result.Summaries {
			s := &result.Summaries[i]
			if err := w.cache.SetSummary(ctx, s.TaxID, s, w.summaryTTL); err != nil {
				w.logger.Warn("failed to cache client summary",
					"nif", s.TaxID,
					"error", err,
				)
			}
		}
	}

	if w.exporter != nil {
		if err := w.exporter.ExportBatch(ctx, batch.ID, result); err != nil {
			w.logger.Error("batch export failed",
				"batch_id", batch.ID,
				"error", err,
			)
		}
	}

	evaluation.Metadata.TotalMs = time.Since(start).Milliseconds()

	w.publishResults(ctx, evaluation, result)

	w.logger.Info("batch processed",
		"batch_id", batch.ID,
		"lines", len(result.Lines),
		"clients", len(result.Summaries),
		"duration_ms", evaluation.Metadata.TotalMs,
	)

	return evaluation, nil
}

func (w *Worker) publishResults(ctx context.Context, evaluation *domain.Evaluation, result *profile.Result) {
	payload, _ := json.Marshal(evaluation)
	if err := w.bus.Publish(ctx, domain.TopicBatchEvaluated, payload); err != nil {
		w.logger.Error("failed to publish evaluation",
			"batch_id", evaluation.BatchID,
			"error", err,
		)
	}

	for i := range result.Summaries {
		s := &result.Summaries[i]
		topic := domain.TopicClientRejected
		if s.Qualifies {
			topic = domain.TopicClientQualified
		}

		summaryPayload, _ := json.Marshal(s)
		if err := w.bus.Publish(ctx, topic, summaryPayload); err != nil {
			w.logger.Error("failed to publish client result",
				"nif", s.TaxID,
				"topic", topic,
				"error", err,
			)
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
