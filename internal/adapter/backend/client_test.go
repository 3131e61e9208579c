package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvaschat/internal/domain"
	"canvaschat/internal/infra/config"
	"canvaschat/internal/infra/logger"
)

func newTestClient(baseURL string) *Client {
	return New(config.BackendConfig{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		SaveRatePerSec: 1000,
		SaveBurst:      1000,
	}, logger.Discard())
}

func TestChatStreamsEvents(t *testing.T) {
	var gotReq domain.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Write([]byte("data: {\"type\":\"delta\",\"content\":\"hi\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api")
	ch, err := c.Chat(context.Background(), domain.ChatRequest{
		Message:   "draw a cat",
		Messages:  []domain.HistoryPair{{Role: domain.RoleUser, Content: "earlier"}},
		SessionID: "p1",
	})
	require.NoError(t, err)

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, "hi", events[0].Content)
	assert.True(t, events[1].Done)
	assert.Equal(t, "draw a cat", gotReq.Message)
	assert.Equal(t, "p1", gotReq.SessionID)
}

func TestChatTransportErrorIsSynchronous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api")
	_, err := c.Chat(context.Background(), domain.ChatRequest{Message: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestListSaveDeleteProjects(t *testing.T) {
	var saved domain.Project
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/canvases":
			json.NewEncoder(w).Encode([]domain.Project{{ID: "p1", Name: "First"}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/canvases":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			json.NewEncoder(w).Encode(saved)
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/canvases/"):
			deleted = strings.TrimPrefix(r.URL.Path, "/api/canvases/")
			json.NewEncoder(w).Encode(map[string]bool{"success": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api")
	ctx := context.Background()

	projects, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)

	require.NoError(t, c.SaveProject(ctx, &domain.Project{ID: "p2", Name: "Second"}))
	assert.Equal(t, "p2", saved.ID)

	require.NoError(t, c.DeleteProject(ctx, "p2"))
	assert.Equal(t, "p2", deleted)
}

func TestSaveProjectMapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusBadGateway, domain.ErrUpstream},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := newTestClient(srv.URL + "/api")
		err := c.SaveProject(context.Background(), &domain.Project{ID: "p"})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		srv.Close()
	}
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "cat.png", hdr.Filename)
		json.NewEncoder(w).Encode(domain.UploadResult{URL: "/storage/images/cat.png", Filename: "cat.png"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/api")
	res, err := c.UploadImage(context.Background(), "cat.png", "image/png", strings.NewReader("pngbytes"))
	require.NoError(t, err)
	assert.Equal(t, "/storage/images/cat.png", res.URL)
}

func TestUploadImageRejectsNonImage(t *testing.T) {
	c := newTestClient("http://unused/api")
	_, err := c.UploadImage(context.Background(), "doc.pdf", "application/pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotImage)
}

func TestResolveURL(t *testing.T) {
	c := newTestClient("http://host:8000/api")
	assert.Equal(t, "http://host:8000/storage/images/x.png", c.ResolveURL("/storage/images/x.png"))
	assert.Equal(t, "https://cdn/x.png", c.ResolveURL("https://cdn/x.png"))
	assert.Equal(t, "", c.ResolveURL(""))
}
