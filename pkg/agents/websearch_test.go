package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

func TestWebSearcherEmptyBaseURLReturnsEmptyResult(t *testing.T) {
	s := NewWebSearcher("", 0)
	msg := models.NewTaskMessage("task-1", models.StageWebSearch)
	msg.Query = "latest incident response practices"

	result, err := s.Search(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, result["documents"])
}

func TestWebSearcherReturnsDocumentsPrefixedWithW(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "incident response", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","title":"External guide","url":"https://example.com","score":0.77}]`))
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, time.Second)
	msg := models.NewTaskMessage("task-1", models.StageWebSearch)
	msg.Query = "incident response"

	result, err := s.Search(context.Background(), msg)
	require.NoError(t, err)

	docs := result["documents"].([]models.SourceHit)
	require.Len(t, docs, 1)
	assert.Equal(t, "w_1", docs[0].ID)
	assert.Equal(t, "External guide", docs[0].Title)
}

func TestWebSearcherNon200ReturnsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewWebSearcher(srv.URL, time.Second)
	msg := models.NewTaskMessage("task-1", models.StageWebSearch)
	msg.Query = "anything"

	result, err := s.Search(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, result["documents"])
}

func TestWebSearcherUnreachableReturnsEmptyResult(t *testing.T) {
	s := NewWebSearcher("http://127.0.0.1:1", 50*time.Millisecond)
	msg := models.NewTaskMessage("task-1", models.StageWebSearch)
	msg.Query = "anything"

	result, err := s.Search(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, result["documents"])
}
