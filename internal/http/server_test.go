package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeIngester struct {
	gotText     string
	gotFilename string
	result      *ingest.Result
	err         error
}

func (f *fakeIngester) Ingest(_ context.Context, text, sourceFilename string) (*ingest.Result, error) {
	f.gotText = text
	f.gotFilename = sourceFilename
	return f.result, f.err
}

type fakeAnswerer struct {
	gotReqs []rag.Request
	resp    *rag.Response
	err     error

	gotQuery    string
	gotLimit    int
	gotFilename string
	results     []vectorstore.SearchResult
	retrieveErr error
}

func (f *fakeAnswerer) Answer(_ context.Context, req rag.Request) (*rag.Response, error) {
	f.gotReqs = append(f.gotReqs, req)
	return f.resp, f.err
}

func (f *fakeAnswerer) Retrieve(_ context.Context, query string, limit int, sourceFilename string) ([]vectorstore.SearchResult, error) {
	f.gotQuery = query
	f.gotLimit = limit
	f.gotFilename = sourceFilename
	return f.results, f.retrieveErr
}

type fakeHealth struct {
	err error
}

func (f *fakeHealth) Health(context.Context) error { return f.err }

func newTestServer(t *testing.T, ingester Ingester, answerer Answerer, health HealthChecker) *Server {
	t.Helper()
	if ingester == nil {
		ingester = &fakeIngester{result: &ingest.Result{Status: ingest.StatusSuccess}}
	}
	if answerer == nil {
		answerer = &fakeAnswerer{resp: &rag.Response{Answer: "answer"}}
	}
	if health == nil {
		health = &fakeHealth{}
	}

	server, err := NewServer(ingester, answerer, health, chat.NewSessionStore(), nil, nil)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func uploadFile(t *testing.T, server *Server, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	if contentType != "" {
		header["Content-Type"] = []string{contentType}
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set(echoContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := newTestServer(t, nil, nil, nil)
		rec := doJSON(t, server, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("store down", func(t *testing.T) {
		server := newTestServer(t, nil, nil, &fakeHealth{err: errors.New("unreachable")})
		rec := doJSON(t, server, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unavailable", resp.Status)
	})
}

func TestIngestDocument(t *testing.T) {
	t.Run("text upload", func(t *testing.T) {
		ingester := &fakeIngester{result: &ingest.Result{
			Status:  ingest.StatusSuccess,
			Chunks:  3,
			Stored:  2,
			Skipped: 1,
		}}
		server := newTestServer(t, ingester, nil, nil)

		rec := uploadFile(t, server, "notes.txt", "text/plain", "Some document text.")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp IngestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp.Status)
		assert.Equal(t, 3, resp.Chunks)
		assert.Equal(t, 2, resp.Stored)
		assert.Equal(t, 1, resp.Skipped)

		assert.Equal(t, "Some document text.", ingester.gotText)
		assert.Equal(t, "notes.txt", ingester.gotFilename)
	})

	t.Run("missing file field", func(t *testing.T) {
		server := newTestServer(t, nil, nil, nil)

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		require.NoError(t, writer.WriteField("other", "value"))
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
		req.Header.Set(echoContentType, writer.FormDataContentType())
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		server := newTestServer(t, nil, nil, nil)
		rec := uploadFile(t, server, "empty.txt", "text/plain", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported type", func(t *testing.T) {
		server := newTestServer(t, nil, nil, nil)
		rec := uploadFile(t, server, "archive.zip", "application/zip", "PK data")
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("ingestion failure", func(t *testing.T) {
		ingester := &fakeIngester{err: errors.New("store unreachable")}
		server := newTestServer(t, ingester, nil, nil)
		rec := uploadFile(t, server, "notes.txt", "text/plain", "text")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestChat(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		answerer := &fakeAnswerer{resp: &rag.Response{Answer: "Grounded answer.", Retrieved: 2}}
		server := newTestServer(t, nil, answerer, nil)

		temp := 0.3
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{
			Question:       "What does the doc say?",
			Backend:        "mistral",
			Temperature:    &temp,
			SourceFilename: "doc.pdf",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ChatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Grounded answer.", resp.Answer)
		assert.Equal(t, 2, resp.Retrieved)

		require.Len(t, answerer.gotReqs, 1)
		got := answerer.gotReqs[0]
		assert.Equal(t, "What does the doc say?", got.Question)
		assert.Equal(t, "mistral", got.Backend)
		assert.Equal(t, "doc.pdf", got.SourceFilename)
		require.NotNil(t, got.Temperature)
		assert.Equal(t, 0.3, *got.Temperature)
		require.NotNil(t, got.History)
	})

	t.Run("session history is reused", func(t *testing.T) {
		answerer := &fakeAnswerer{resp: &rag.Response{Answer: "a"}}
		server := newTestServer(t, nil, answerer, nil)

		for i := 0; i < 2; i++ {
			rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{
				Question:  "q",
				SessionID: "abc",
			})
			require.Equal(t, http.StatusOK, rec.Code)
		}
		require.Len(t, answerer.gotReqs, 2)
		assert.Same(t, answerer.gotReqs[0].History, answerer.gotReqs[1].History)
	})

	t.Run("anonymous turns are isolated", func(t *testing.T) {
		answerer := &fakeAnswerer{resp: &rag.Response{Answer: "a"}}
		server := newTestServer(t, nil, answerer, nil)

		for i := 0; i < 2; i++ {
			rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Question: "q"})
			require.Equal(t, http.StatusOK, rec.Code)
		}
		require.Len(t, answerer.gotReqs, 2)
		assert.NotSame(t, answerer.gotReqs[0].History, answerer.gotReqs[1].History)
	})

	t.Run("blank question", func(t *testing.T) {
		answerer := &fakeAnswerer{err: rag.ErrBlankQuestion}
		server := newTestServer(t, nil, answerer, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Question: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown backend", func(t *testing.T) {
		answerer := &fakeAnswerer{err: fmt.Errorf("%w: %q", chat.ErrUnknownBackend, "nope")}
		server := newTestServer(t, nil, answerer, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Question: "q", Backend: "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown backend")
	})

	t.Run("transport failure", func(t *testing.T) {
		answerer := &fakeAnswerer{err: errors.New("store down")}
		server := newTestServer(t, nil, answerer, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Question: "q"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := newTestServer(t, nil, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{{"))
		req.Header.Set(echoContentType, "application/json")
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSearch(t *testing.T) {
	t.Run("returns hits", func(t *testing.T) {
		answerer := &fakeAnswerer{results: []vectorstore.SearchResult{
			{ID: "a", Score: 0.9, Text: "First chunk.", SourceFilename: "doc.pdf"},
			{ID: "b", Score: 0.4, Text: "Second chunk."},
		}}
		server := newTestServer(t, nil, answerer, nil)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{
			Query:          "what the report says",
			SourceFilename: "doc.pdf",
			Limit:          3,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, SearchHit{ID: "a", Score: 0.9, Text: "First chunk.", SourceFilename: "doc.pdf"}, resp.Results[0])
		assert.Equal(t, SearchHit{ID: "b", Score: 0.4, Text: "Second chunk."}, resp.Results[1])

		assert.Equal(t, "what the report says", answerer.gotQuery)
		assert.Equal(t, 3, answerer.gotLimit)
		assert.Equal(t, "doc.pdf", answerer.gotFilename)
	})

	t.Run("no hits is an empty list", func(t *testing.T) {
		server := newTestServer(t, nil, &fakeAnswerer{}, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"results":[]}`, rec.Body.String())
	})

	t.Run("blank query", func(t *testing.T) {
		answerer := &fakeAnswerer{retrieveErr: rag.ErrBlankQuestion}
		server := newTestServer(t, nil, answerer, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Query: " "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("transport failure", func(t *testing.T) {
		answerer := &fakeAnswerer{retrieveErr: errors.New("store down")}
		server := newTestServer(t, nil, answerer, nil)
		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestUploadBodyLimit(t *testing.T) {
	ingester := &fakeIngester{result: &ingest.Result{Status: ingest.StatusSuccess}}
	server, err := NewServer(ingester,
		&fakeAnswerer{resp: &rag.Response{}},
		&fakeHealth{}, nil, nil,
		&Config{Host: "localhost", Port: 8080, MaxUploadBytes: 64})
	require.NoError(t, err)

	rec := uploadFile(t, server, "big.txt", "text/plain", strings.Repeat("a", 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
