// Package engine runs rules against stored products: it loads a batch,
// applies a rule to it and persists the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"catalog-rules-service/internal/domain"
	"catalog-rules-service/internal/rule"
	"catalog-rules-service/internal/store"
)

// ErrBatchTooLarge is returned when a run targets more products than allowed.
var ErrBatchTooLarge = errors.New("engine: too many products in one run")

// RuleApplier applies a rule to products in place.
type RuleApplier interface {
	Apply(ctx context.Context, products []*domain.Product, r rule.Rule) error
}

// RunRequest describes one rule run.
type RunRequest struct {
	ProductIDs []int64
	Rule       rule.Rule
	DryRun     bool // apply without persisting
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID    string            `json:"run_id"`
	RuleCode string            `json:"rule"`
	DryRun   bool              `json:"dry_run"`
	Products []*domain.Product `json:"products"`
}

// Runner loads products, applies a rule and saves the result.
type Runner struct {
	products     store.ProductStorer
	applier      RuleApplier
	maxBatchSize int
	logger       zerolog.Logger
}

// NewRunner creates a Runner. maxBatchSize <= 0 disables the batch limit.
func NewRunner(products store.ProductStorer, applier RuleApplier, maxBatchSize int, logger zerolog.Logger) *Runner {
	return &Runner{
		products:     products,
		applier:      applier,
		maxBatchSize: maxBatchSize,
		logger:       logger.With().Str("component", "rule_runner").Logger(),
	}
}

// Run executes req. When the rule fails nothing is saved: a partially
// applied batch is discarded.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if r.maxBatchSize > 0 && len(req.ProductIDs) > r.maxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(req.ProductIDs), r.maxBatchSize)
	}

	runID := uuid.NewString()
	logger := r.logger.With().
		Str("run_id", runID).
		Str("rule", req.Rule.Code()).
		Logger()
	started := time.Now()

	products, err := r.products.GetProductsByIDs(ctx, dedupe(req.ProductIDs))
	if err != nil {
		return nil, fmt.Errorf("engine: loading products: %w", err)
	}

	if err := r.applier.Apply(ctx, products, req.Rule); err != nil {
		logger.Warn().Err(err).Int("products", len(products)).Msg("rule run failed, changes discarded")
		return nil, err
	}

	if !req.DryRun {
		if err := r.products.SaveProducts(ctx, products); err != nil {
			return nil, fmt.Errorf("engine: saving products: %w", err)
		}
	}

	logger.Info().
		Int("products", len(products)).
		Int("actions", req.Rule.Len()).
		Bool("dry_run", req.DryRun).
		Dur("took", time.Since(started)).
		Msg("rule run completed")

	return &RunResult{
		RunID:    runID,
		RuleCode: req.Rule.Code(),
		DryRun:   req.DryRun,
		Products: products,
	}, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
