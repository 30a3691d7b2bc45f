// Package extract turns rendered page markup into the structured record the
// change detector diffs. Extraction is cache first, model second, pattern
// matching last: identical or near-identical pages never reach the model
// twice, and a model outage degrades fidelity instead of failing jobs.
package extract

import (
	"context"
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"

	"github.com/rivaleye/rivaleye/internal/metrics"
	"github.com/rivaleye/rivaleye/internal/monitor"
)

// ModelClient is the LLM side of the engine, satisfied by LLMClient.
type ModelClient interface {
	Extract(ctx context.Context, content, industry string) (monitor.ExtractedData, error)
}

// Engine implements monitor.Extractor.
type Engine struct {
	cache       monitor.ExtractionCache
	hasher      monitor.Hasher
	model       ModelClient
	mdConverter *converter.Converter
	logger      *zap.Logger

	// maxInputBytes bounds the markdown handed to the model so oversized
	// pages stay inside the prompt window.
	maxInputBytes int
}

// NewEngine builds an Engine.
func NewEngine(cache monitor.ExtractionCache, hasher monitor.Hasher, model ModelClient, maxInputBytes int, logger *zap.Logger) *Engine {
	if maxInputBytes <= 0 {
		maxInputBytes = 48000
	}
	return &Engine{
		cache:  cache,
		hasher: hasher,
		model:  model,
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger:        logger.Named("extract"),
		maxInputBytes: maxInputBytes,
	}
}

// Extract returns the structured record for the given markup. A hit on either
// the raw or the normalized content hash short-circuits the model call and
// backfills the missing key. On a miss the model is asked once; any model or
// parse failure degrades to pattern-based extraction instead of erroring.
func (e *Engine) Extract(ctx context.Context, html, industry string) (monitor.ExtractionResult, error) {
	rawHash, err := e.hasher.Hash([]byte(html))
	if err != nil {
		return monitor.ExtractionResult{}, fmt.Errorf("hash raw content: %w", err)
	}
	normHash, err := e.hasher.Hash([]byte(Normalize(html)))
	if err != nil {
		return monitor.ExtractionResult{}, fmt.Errorf("hash normalized content: %w", err)
	}

	result := monitor.ExtractionResult{ContentHash: rawHash, NormalizedHash: normHash}

	if data := e.cacheLookup(ctx, rawHash); data != nil {
		metrics.CacheLookup(true)
		e.cachePut(ctx, normHash, *data)
		result.Data = *data
		result.CacheHit = true
		return result, nil
	}
	if data := e.cacheLookup(ctx, normHash); data != nil {
		metrics.CacheLookup(true)
		e.cachePut(ctx, rawHash, *data)
		result.Data = *data
		result.CacheHit = true
		return result, nil
	}
	metrics.CacheLookup(false)

	data, err := e.model.Extract(ctx, e.prepareContent(html), industry)
	if err != nil {
		e.logger.Warn("model extraction failed, using pattern fallback", zap.Error(err))
		metrics.ExtractionFallback()
		result.Data = FallbackExtract(html)
		result.UsedFallback = true
		return result, nil
	}

	e.cachePut(ctx, rawHash, data)
	e.cachePut(ctx, normHash, data)
	result.Data = data
	return result, nil
}

// prepareContent converts markup to markdown for a denser prompt, then clips
// it to the configured byte ceiling.
func (e *Engine) prepareContent(html string) string {
	content, err := e.mdConverter.ConvertString(html)
	if err != nil || content == "" {
		content = Normalize(html)
	}
	if len(content) > e.maxInputBytes {
		content = content[:e.maxInputBytes]
	}
	return content
}

func (e *Engine) cacheLookup(ctx context.Context, key string) *monitor.ExtractedData {
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("extraction cache read failed", zap.String("hash", key), zap.Error(err))
		return nil
	}
	return data
}

func (e *Engine) cachePut(ctx context.Context, key string, data monitor.ExtractedData) {
	if err := e.cache.Put(ctx, key, data); err != nil {
		e.logger.Warn("extraction cache write failed", zap.String("hash", key), zap.Error(err))
	}
}
