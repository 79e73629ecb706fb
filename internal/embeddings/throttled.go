package embeddings

import (
	"context"

	"github.com/nickcecere/docqa/internal/retry"
)

// ThrottledService wraps a Service so every call passes the caller's rate
// limiter and is retried on failure.
type ThrottledService struct {
	inner  Service
	caller *retry.Caller
}

var _ Service = (*ThrottledService)(nil)

// NewThrottledService wraps inner.
func NewThrottledService(inner Service, caller *retry.Caller) *ThrottledService {
	return &ThrottledService{inner: inner, caller: caller}
}

// Unwrap returns the wrapped service.
func (s *ThrottledService) Unwrap() Service {
	return s.inner
}

func (s *ThrottledService) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.caller.Do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = s.inner.Embed(ctx, text)
		return err
	})
	return out, err
}

func (s *ThrottledService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.caller.Do(ctx, "embed_query", func(ctx context.Context) error {
		var err error
		out, err = s.inner.EmbedQuery(ctx, text)
		return err
	})
	return out, err
}

func (s *ThrottledService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.caller.Do(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		out, err = s.inner.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

func (s *ThrottledService) Dimensions() int    { return s.inner.Dimensions() }
func (s *ThrottledService) Provider() Provider { return s.inner.Provider() }
func (s *ThrottledService) ModelName() string  { return s.inner.ModelName() }
