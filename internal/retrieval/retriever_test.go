package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	results []vectorstore.Result
	err     error
	k       int
}

func (f *fakeIndex) Upsert(context.Context, string, []float32, string) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, k int) ([]vectorstore.Result, error) {
	f.k = k
	return f.results, f.err
}

func (f *fakeIndex) Count(context.Context) (int, error) { return len(f.results), nil }
func (f *fakeIndex) Close() error                        { return nil }

func newRetriever(t *testing.T, emb *fakeEmbedder, idx vectorstore.Index, cfg Config) *Retriever {
	t.Helper()
	r, err := New(emb, idx, cfg, nil)
	require.NoError(t, err)
	return r
}

func TestRetrieve_EmptyQuestionSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	r := newRetriever(t, emb, &fakeIndex{}, DefaultConfig())

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Retrieve(context.Background(), q)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Zero(t, emb.calls)
}

func TestRetrieve_EmptyIndexReturnsSentinel(t *testing.T) {
	r := newRetriever(t, &fakeEmbedder{}, &fakeIndex{}, DefaultConfig())

	got, err := r.Retrieve(context.Background(), "What is the melting point of titanium?")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInformation, got.Context)
	assert.False(t, got.Found)
}

func TestRetrieve_FetchesKUsesTop(t *testing.T) {
	idx := &fakeIndex{results: []vectorstore.Result{
		{ID: "OmegaGel", Text: "omega", Score: 0.9},
		{ID: "VitaBoost", Text: "vita", Score: 0.5},
		{ID: "ZincPlus", Text: "zinc", Score: 0.1},
	}}
	r := newRetriever(t, &fakeEmbedder{}, idx, DefaultConfig())

	got, err := r.Retrieve(context.Background(), "Is OmegaGel in stock?")
	require.NoError(t, err)
	assert.Equal(t, 3, idx.k)
	assert.Equal(t, "omega", got.Context)
	assert.Len(t, got.Results, 3)
	assert.True(t, got.Found)

	r2 := newRetriever(t, &fakeEmbedder{}, idx, Config{TopKFetch: 3, TopKUsed: 2})
	got, err = r2.Retrieve(context.Background(), "supplements")
	require.NoError(t, err)
	assert.Equal(t, "omega\n\nvita", got.Context)
}

func TestRetrieve_FailuresAreRetrievalUnavailable(t *testing.T) {
	embedErr := errors.New("quota")
	_, err := newRetriever(t, &fakeEmbedder{err: embedErr}, &fakeIndex{}, DefaultConfig()).
		Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, embedErr)

	_, err = newRetriever(t, &fakeEmbedder{}, &fakeIndex{err: vectorstore.ErrIndexFailure}, DefaultConfig()).
		Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, vectorstore.ErrIndexFailure)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{TopKFetch: 0, TopKUsed: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{TopKFetch: 2, TopKUsed: 3}.Validate(), ErrInvalidConfig)

	_, err := New(&fakeEmbedder{}, &fakeIndex{}, Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
