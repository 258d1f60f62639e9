package embeddings

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/search"
)

// OpenAI embeds texts with the OpenAI embeddings endpoint.
type OpenAI struct {
	client     openai.Client
	model      string
	dimensions int
}

var _ search.Embedder = (*OpenAI)(nil)

func NewOpenAI(conf *core.Config, opts ...option.RequestOption) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(conf.Search.OpenAIKey)}
	if conf.Search.OpenAIBaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(conf.Search.OpenAIBaseURL))
	}
	return &OpenAI{
		client:     openai.NewClient(append(reqOpts, opts...)...),
		model:      conf.Search.EmbeddingModel,
		dimensions: conf.Search.VectorSize,
	}
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(o.model),
		Dimensions:     openai.Int(int64(o.dimensions)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai embeddings")
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}
