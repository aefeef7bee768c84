package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type respondCall struct {
	prompt      string
	temperature float64
	backend     string
	history     *chat.History
}

type fakeResponder struct {
	fn    func(call respondCall) (string, error)
	calls []respondCall
}

func (f *fakeResponder) Respond(_ context.Context, prompt string, temperature float64, backend string, history *chat.History) (string, error) {
	call := respondCall{prompt: prompt, temperature: temperature, backend: backend, history: history}
	f.calls = append(f.calls, call)
	return f.fn(call)
}

type fakeEmbedder struct {
	gotText string
	vector  []float32
	err     error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.gotText = text
	return f.vector, f.err
}

type fakeSearcher struct {
	gotVector   []float32
	gotLimit    int
	gotFilename string
	results     []vectorstore.SearchResult
	err         error
}

func (f *fakeSearcher) Search(_ context.Context, vector []float32, limit int, sourceFilename string) ([]vectorstore.SearchResult, error) {
	f.gotVector = vector
	f.gotLimit = limit
	f.gotFilename = sourceFilename
	return f.results, f.err
}

func testConfig() Config {
	return Config{
		PromptTemplate:     "Answer using the context.\nContext:\n{context}\n\nQuestion: {question}",
		RewriteTemplate:    "Rewrite for retrieval: {question}",
		HydeTemplate:       "Write about {length} characters answering: {question}",
		SearchLimit:        5,
		ChunkSize:          1000,
		DefaultTemperature: 0.7,
	}
}

func newTestService(t *testing.T, responder Responder, embedder QueryEmbedder, store Searcher) *Service {
	t.Helper()
	svc, err := NewService(responder, embedder, store, testConfig(), nil)
	require.NoError(t, err)
	return svc
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.PromptTemplate = "no placeholders"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.SearchLimit = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.HydeTemplate = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestAnswerBlankQuestion(t *testing.T) {
	svc := newTestService(t,
		&fakeResponder{fn: func(respondCall) (string, error) { return "x", nil }},
		&fakeEmbedder{}, &fakeSearcher{})

	_, err := svc.Answer(context.Background(), Request{Question: "  \n "})
	assert.ErrorIs(t, err, ErrBlankQuestion)
}

func TestAnswerPlainChatMode(t *testing.T) {
	responder := &fakeResponder{fn: func(respondCall) (string, error) { return "Direct answer.", nil }}
	svc := newTestService(t, responder, &fakeEmbedder{}, &fakeSearcher{})
	history := chat.NewHistory()

	resp, err := svc.Answer(context.Background(), Request{
		Question: "What is Go?",
		Backend:  "mistral",
		History:  history,
	})
	require.NoError(t, err)
	assert.Equal(t, "Direct answer.", resp.Answer)
	assert.Zero(t, resp.Retrieved)

	require.Len(t, responder.calls, 1)
	call := responder.calls[0]
	assert.Equal(t, "What is Go?", call.prompt)
	assert.Equal(t, 0.7, call.temperature, "default temperature applies")
	assert.Equal(t, "mistral", call.backend)
	assert.Same(t, history, call.history)
}

func TestAnswerTemperatureOverride(t *testing.T) {
	responder := &fakeResponder{fn: func(respondCall) (string, error) { return "ok", nil }}
	svc := newTestService(t, responder, &fakeEmbedder{}, &fakeSearcher{})

	temp := 0.2
	_, err := svc.Answer(context.Background(), Request{Question: "q", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, 0.2, responder.calls[0].temperature)
}

func TestAnswerFullRetrievalPipeline(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		switch {
		case strings.HasPrefix(call.prompt, "Rewrite for retrieval:"):
			return "rewritten question", nil
		case strings.HasPrefix(call.prompt, "Write about"):
			return "hypothetical passage", nil
		default:
			return "Final grounded answer.", nil
		}
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		{ID: "a", Score: 0.9, Text: "First chunk.", SourceFilename: "doc.pdf"},
		{ID: "b", Score: 0.4, Text: "Second chunk."},
	}}
	svc := newTestService(t, responder, embedder, searcher)
	history := chat.NewHistory()

	resp, err := svc.Answer(context.Background(), Request{
		Question:       "What does the report say?",
		SourceFilename: "doc.pdf",
		History:        history,
	})
	require.NoError(t, err)
	assert.Equal(t, "Final grounded answer.", resp.Answer)
	assert.Equal(t, 2, resp.Retrieved)

	require.Len(t, responder.calls, 3)

	rewrite := responder.calls[0]
	assert.Equal(t, "Rewrite for retrieval: What does the report say?", rewrite.prompt)
	assert.Zero(t, rewrite.temperature)
	assert.NotSame(t, history, rewrite.history, "rewrite must use an isolated history")

	hyde := responder.calls[1]
	assert.Equal(t, "Write about 250 characters answering: rewritten question", hyde.prompt)
	assert.Zero(t, hyde.temperature)
	assert.NotSame(t, history, hyde.history)

	assert.Equal(t, "hypothetical passage", embedder.gotText)
	assert.Equal(t, []float32{0.1, 0.2}, searcher.gotVector)
	assert.Equal(t, 5, searcher.gotLimit)
	assert.Equal(t, "doc.pdf", searcher.gotFilename)

	final := responder.calls[2]
	assert.Same(t, history, final.history)
	assert.Contains(t, final.prompt, "Source: doc.pdf\nContent: First chunk.")
	assert.Contains(t, final.prompt, "\n---\n")
	assert.Contains(t, final.prompt, "Second chunk.")
	assert.NotContains(t, final.prompt, "Source: \n")
	assert.Contains(t, final.prompt, "Question: What does the report say?")
}

func TestAnswerRewriteFailureFallsBack(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		switch {
		case strings.HasPrefix(call.prompt, "Rewrite for retrieval:"):
			return "", errors.New("backend down")
		case strings.HasPrefix(call.prompt, "Write about"):
			return "hypothetical passage", nil
		default:
			return "answer", nil
		}
	}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}}
	svc := newTestService(t, responder, embedder, searcher)

	_, err := svc.Answer(context.Background(), Request{
		Question:       "Original question?",
		SourceFilename: "doc.pdf",
	})
	require.NoError(t, err)

	// The hypothetical prompt is built from the original question.
	assert.Equal(t, "Write about 250 characters answering: Original question?", responder.calls[1].prompt)
}

func TestAnswerHydeFailureFallsBackToRewrite(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		switch {
		case strings.HasPrefix(call.prompt, "Rewrite for retrieval:"):
			return "rewritten question", nil
		case strings.HasPrefix(call.prompt, "Write about"):
			return "   ", nil
		default:
			return "answer", nil
		}
	}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}}
	svc := newTestService(t, responder, embedder, searcher)

	_, err := svc.Answer(context.Background(), Request{Question: "q", SourceFilename: "doc.pdf"})
	require.NoError(t, err)

	assert.Equal(t, "rewritten question", embedder.gotText)
}

// silentBackend yields no messages for rewrite and hypothetical-document
// prompts, so the dispatcher turns those turns into its unavailable
// sentinel rather than an error.
type silentBackend struct{}

func (silentBackend) Name() string            { return "openai" }
func (silentBackend) ReasoningMarker() string { return "" }

func (silentBackend) Complete(_ context.Context, messages []chat.Message, _ chat.CompleteOptions) ([]chat.Message, error) {
	prompt := messages[len(messages)-1].Content
	if strings.HasPrefix(prompt, "Rewrite") || strings.HasPrefix(prompt, "Write about") {
		return nil, nil
	}
	return []chat.Message{{Role: chat.RoleAssistant, Content: "answer"}}, nil
}

func TestAnswerUnavailableSentinelIsStageFailure(t *testing.T) {
	registry, err := chat.NewRegistry("openai", silentBackend{})
	require.NoError(t, err)
	dispatcher, err := chat.NewDispatcher(registry, nil)
	require.NoError(t, err)

	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}}
	svc := newTestService(t, dispatcher, embedder, searcher)

	_, err = svc.Answer(context.Background(), Request{
		Question:       "Original question?",
		SourceFilename: "doc.pdf",
	})
	require.NoError(t, err)

	// Both stages degraded to the unavailable sentinel, so the original
	// question is what gets embedded, never the sentinel text.
	assert.Equal(t, "Original question?", embedder.gotText)
}

func TestAnswerHydeUnavailableFallsBackToRewrite(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		switch {
		case strings.HasPrefix(call.prompt, "Rewrite for retrieval:"):
			return "rewritten question", nil
		case strings.HasPrefix(call.prompt, "Write about"):
			return chat.UnavailableMessage, nil
		default:
			return "answer", nil
		}
	}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}}
	svc := newTestService(t, responder, embedder, searcher)

	_, err := svc.Answer(context.Background(), Request{Question: "q", SourceFilename: "doc.pdf"})
	require.NoError(t, err)

	assert.Equal(t, "rewritten question", embedder.gotText)
}

func TestAnswerBothStagesFailEmbedsOriginal(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		if strings.HasPrefix(call.prompt, "Rewrite") || strings.HasPrefix(call.prompt, "Write about") {
			return "", errors.New("backend down")
		}
		return "answer", nil
	}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}}
	svc := newTestService(t, responder, embedder, searcher)

	_, err := svc.Answer(context.Background(), Request{Question: "Original question?", SourceFilename: "doc.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "Original question?", embedder.gotText)
}

func TestAnswerNoResultsFallsBackToDirect(t *testing.T) {
	responder := &fakeResponder{fn: func(call respondCall) (string, error) {
		return "direct: " + call.prompt, nil
	}}
	embedder := &fakeEmbedder{vector: []float32{1}}
	searcher := &fakeSearcher{}
	svc := newTestService(t, responder, embedder, searcher)
	history := chat.NewHistory()

	resp, err := svc.Answer(context.Background(), Request{
		Question:       "Unfindable question?",
		SourceFilename: "doc.pdf",
		History:        history,
	})
	require.NoError(t, err)
	assert.Zero(t, resp.Retrieved)

	final := responder.calls[len(responder.calls)-1]
	assert.Equal(t, "Unfindable question?", final.prompt)
	assert.Same(t, history, final.history)
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("embeds the query verbatim", func(t *testing.T) {
		responder := &fakeResponder{fn: func(respondCall) (string, error) { return "x", nil }}
		embedder := &fakeEmbedder{vector: []float32{0.1}}
		searcher := &fakeSearcher{results: []vectorstore.SearchResult{{ID: "a", Text: "chunk"}}}
		svc := newTestService(t, responder, embedder, searcher)

		results, err := svc.Retrieve(ctx, "raw query", 3, "doc.pdf")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "chunk", results[0].Text)

		assert.Equal(t, "raw query", embedder.gotText)
		assert.Equal(t, 3, searcher.gotLimit)
		assert.Equal(t, "doc.pdf", searcher.gotFilename)
		assert.Empty(t, responder.calls, "retrieval must not call a chat backend")
	})

	t.Run("non-positive limit uses the configured default", func(t *testing.T) {
		searcher := &fakeSearcher{}
		svc := newTestService(t,
			&fakeResponder{fn: func(respondCall) (string, error) { return "x", nil }},
			&fakeEmbedder{vector: []float32{1}}, searcher)

		_, err := svc.Retrieve(ctx, "q", 0, "")
		require.NoError(t, err)
		assert.Equal(t, 5, searcher.gotLimit)
	})

	t.Run("blank query rejected", func(t *testing.T) {
		svc := newTestService(t,
			&fakeResponder{fn: func(respondCall) (string, error) { return "x", nil }},
			&fakeEmbedder{}, &fakeSearcher{})

		_, err := svc.Retrieve(ctx, "  \n", 3, "")
		assert.ErrorIs(t, err, ErrBlankQuestion)
	})

	t.Run("transport failures surface", func(t *testing.T) {
		svc := newTestService(t,
			&fakeResponder{fn: func(respondCall) (string, error) { return "x", nil }},
			&fakeEmbedder{err: errors.New("provider down")}, &fakeSearcher{})

		_, err := svc.Retrieve(ctx, "q", 3, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding retrieval query")
	})
}

func TestAnswerTransportErrorsSurface(t *testing.T) {
	okResponder := func() *fakeResponder {
		return &fakeResponder{fn: func(call respondCall) (string, error) { return "text", nil }}
	}

	t.Run("embedding failure", func(t *testing.T) {
		svc := newTestService(t, okResponder(),
			&fakeEmbedder{err: errors.New("provider down")},
			&fakeSearcher{})
		_, err := svc.Answer(context.Background(), Request{Question: "q", SourceFilename: "f"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding retrieval query")
	})

	t.Run("search failure", func(t *testing.T) {
		svc := newTestService(t, okResponder(),
			&fakeEmbedder{vector: []float32{1}},
			&fakeSearcher{err: errors.New("store down")})
		_, err := svc.Answer(context.Background(), Request{Question: "q", SourceFilename: "f"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "searching chunks")
	})

	t.Run("final dispatch failure", func(t *testing.T) {
		responder := &fakeResponder{fn: func(call respondCall) (string, error) {
			if strings.HasPrefix(call.prompt, "Answer using the context.") {
				return "", errors.New("backend down")
			}
			return "text", nil
		}}
		svc := newTestService(t, responder,
			&fakeEmbedder{vector: []float32{1}},
			&fakeSearcher{results: []vectorstore.SearchResult{{Text: "chunk"}}})
		_, err := svc.Answer(context.Background(), Request{Question: "q", SourceFilename: "f"})
		require.Error(t, err)
	})
}
