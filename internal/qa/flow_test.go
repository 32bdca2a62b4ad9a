package qa

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/productqa/internal/answer"
	"github.com/fyrsmithlabs/productqa/internal/catalog"
	"github.com/fyrsmithlabs/productqa/internal/ingest"
	"github.com/fyrsmithlabs/productqa/internal/retrieval"
	"github.com/fyrsmithlabs/productqa/internal/vectorstore"
)

// wordEmbedder hashes words into buckets, plus a constant component so no
// vector is all zeros.
type wordEmbedder struct{}

func (wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 17)
		vec[16] = 1
		for _, w := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(w, ".,?:")))
			vec[h.Sum32()%16]++
		}
		out[i] = vec
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// recordingGenerator keeps every prompt and replies with a fixed answer.
type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, nil
}

func (g *recordingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

var omegaGel = catalog.ProductRecord{
	ProductName:       "OmegaGel",
	Weight:            "50",
	Manufacturer:      "NutriCo",
	ReferencePrice:    "19.99",
	InStock:           "1",
	HealthDescription: "an omega-3 supplement",
	ProductDetails:    "60 softgels",
	StorageMethod:     "Store below 25C",
	Certifications:    "GMP",
	AllergyInfo:       "Contains fish",
	ExpirationDate:    "2027-06-30",
	DeliveryTime:      "2 days",
}

// newFlow ingests source into a fresh chromem index and wires the real
// retriever and composer around it.
func newFlow(t *testing.T, source catalog.Source, gen *recordingGenerator) *Service {
	t.Helper()
	ctx := context.Background()

	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Path: t.TempDir(), Collection: "flow_test"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	report, err := ingest.New(source, wordEmbedder{}, idx, ingest.Config{}, nil).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, ingest.StateCompleted, report.State)

	r, err := retrieval.New(wordEmbedder{}, idx, retrieval.DefaultConfig(), nil)
	require.NoError(t, err)
	return NewService(r, answer.NewComposer(gen, answer.Config{}, nil), 2, nil)
}

func TestFlow_StockQuestionSeesStockStatus(t *testing.T) {
	gen := &recordingGenerator{reply: "Yes, OmegaGel is in stock."}
	s := newFlow(t, catalog.StaticSource{omegaGel}, gen)

	got, err := s.Ask(context.Background(), "Is OmegaGel in stock?")
	require.NoError(t, err)

	assert.True(t, got.Found)
	assert.Equal(t, []string{"OmegaGel"}, got.Sources)
	assert.Contains(t, got.Context, "In Stock")
	assert.Contains(t, gen.lastPrompt(), "Stock Status: In Stock.")
	assert.Contains(t, gen.lastPrompt(), `The user asked: "Is OmegaGel in stock?"`)
	assert.NotEmpty(t, got.Text)
	assert.NotEqual(t, answer.Fallback, got.Text)
}

func TestFlow_UnrelatedQuestionForwardsProductContext(t *testing.T) {
	gen := &recordingGenerator{reply: answer.Fallback}
	s := newFlow(t, catalog.StaticSource{omegaGel}, gen)

	doc, err := catalog.Project(omegaGel)
	require.NoError(t, err)

	question := "What is the melting point of titanium?"
	got, err := s.Ask(context.Background(), question)
	require.NoError(t, err)

	assert.Equal(t, doc.Text, got.Context)
	assert.Equal(t, answer.BuildPrompt(doc.Text, question), gen.lastPrompt())
	assert.Equal(t, answer.Fallback, got.Text)
}

func TestFlow_EmptyCatalogUsesSentinel(t *testing.T) {
	gen := &recordingGenerator{reply: answer.Fallback}
	s := newFlow(t, catalog.StaticSource{}, gen)

	got, err := s.Ask(context.Background(), "Is OmegaGel in stock?")
	require.NoError(t, err)

	assert.False(t, got.Found)
	assert.Equal(t, retrieval.NoRelevantInformation, got.Context)
	assert.Contains(t, gen.lastPrompt(), retrieval.NoRelevantInformation)
}
