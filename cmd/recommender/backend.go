package main

import (
	"context"

	"github.com/cisec/aisac-logformat/internal/bootstrap"
	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/internal/remote"
	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

// backend answers CLI queries either in-process or through a remote service.
type backend interface {
	Recommend(ctx context.Context, line string, opts types.Options) ([]types.Recommendation, error)
	RecommendBatch(ctx context.Context, req protocol.BatchRequest) (*protocol.BatchResponse, error)
	Formats(ctx context.Context, group string) ([]types.FormatSummary, error)
	GroupStatistics(ctx context.Context) (map[string]int, error)
	VendorStatistics(ctx context.Context) (map[string]int, error)
	Validate(ctx context.Context) (*recommend.ValidationReport, error)
	Close() error
}

type localBackend struct {
	app      *bootstrap.App
	defaults recommend.Options
}

func (b *localBackend) Recommend(ctx context.Context, line string, opts types.Options) ([]types.Recommendation, error) {
	recs, err := b.app.Recommender.Recommend(ctx, line, recommend.OptionsFromWire(opts, b.defaults))
	if err != nil {
		return nil, err
	}
	return recommend.WireList(recs), nil
}

func (b *localBackend) RecommendBatch(ctx context.Context, req protocol.BatchRequest) (*protocol.BatchResponse, error) {
	opts := recommend.OptionsFromWire(req.Options, b.defaults)
	resp := &protocol.BatchResponse{Lines: len(req.Lines)}

	if req.PerLine {
		results, err := b.app.Recommender.RecommendBatchPerLine(ctx, req.Lines, opts)
		if err != nil {
			return nil, err
		}
		resp.PerLine = make([][]types.Recommendation, len(results))
		for i, recs := range results {
			resp.PerLine[i] = recommend.WireList(recs)
		}
		return resp, nil
	}

	recs, err := b.app.Recommender.RecommendBatch(ctx, req.Lines, opts)
	if err != nil {
		return nil, err
	}
	resp.Recommendations = recommend.WireList(recs)
	return resp, nil
}

func (b *localBackend) Formats(_ context.Context, group string) ([]types.FormatSummary, error) {
	formats := b.app.Recommender.AvailableFormats()
	if group != "" {
		formats = b.app.Recommender.FormatsByGroup(group)
	}
	out := make([]types.FormatSummary, 0, len(formats))
	for _, f := range formats {
		out = append(out, recommend.Summary(f))
	}
	return out, nil
}

func (b *localBackend) GroupStatistics(context.Context) (map[string]int, error) {
	return b.app.Recommender.GroupStatistics(), nil
}

func (b *localBackend) VendorStatistics(context.Context) (map[string]int, error) {
	return b.app.Recommender.VendorStatistics(), nil
}

func (b *localBackend) Validate(ctx context.Context) (*recommend.ValidationReport, error) {
	return b.app.Recommender.Validate(ctx)
}

func (b *localBackend) Close() error {
	return b.app.Close()
}

type remoteBackend struct {
	client *remote.Client
}

func (b *remoteBackend) Recommend(ctx context.Context, line string, opts types.Options) ([]types.Recommendation, error) {
	resp, err := b.client.Recommend(ctx, line, opts)
	if err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

func (b *remoteBackend) RecommendBatch(ctx context.Context, req protocol.BatchRequest) (*protocol.BatchResponse, error) {
	return b.client.RecommendBatch(ctx, req)
}

func (b *remoteBackend) Formats(ctx context.Context, group string) ([]types.FormatSummary, error) {
	return b.client.Formats(ctx, group)
}

func (b *remoteBackend) GroupStatistics(ctx context.Context) (map[string]int, error) {
	return b.client.GroupStatistics(ctx)
}

func (b *remoteBackend) VendorStatistics(ctx context.Context) (map[string]int, error) {
	return b.client.VendorStatistics(ctx)
}

func (b *remoteBackend) Validate(ctx context.Context) (*recommend.ValidationReport, error) {
	return b.client.Validate(ctx)
}

func (b *remoteBackend) Close() error { return nil }
