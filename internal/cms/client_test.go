package cms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:     srv.URL,
		Username:    "editor",
		AppPassword: "secret",
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return c, srv
}

func TestCategoriesSendsBasicAuth(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "editor", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/wp-json/wp/v2/categories", r.URL.Path)
		w.Write([]byte(`[{"id":4,"name":"Wall Panels","slug":"wall-panels"},{"id":7,"name":"Flooring","slug":"flooring"}]`))
	}))
	terms, err := c.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, int64(4), terms[0].ID)
	assert.Equal(t, "Wall Panels", terms[0].Name)
}

func TestMeProbesIdentity(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/users/me", r.URL.Path)
		assert.Equal(t, "edit", r.URL.Query().Get("context"))
		w.Write([]byte(`{"id":3,"name":"editor"}`))
	}))
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), me.ID)
	assert.Equal(t, "editor", me.Name)
}

func TestMeSurfacesBadCredentials(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"incorrect_password"}`))
	}))
	_, err := c.Me(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestAuthorsList(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/users", r.URL.Path)
		w.Write([]byte(`[{"id":1,"name":"admin"},{"id":3,"name":"editor"}]`))
	}))
	authors, err := c.Authors(context.Background())
	require.NoError(t, err)
	require.Len(t, authors, 2)
	assert.Equal(t, "editor", authors[1].Name)
}

func TestCreatePostPayload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		var in map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Wall Panels in Austin", in["title"])
		assert.Equal(t, "publish", in["status"])
		assert.Equal(t, "wall-panels-in-austin", in["slug"])
		assert.Equal(t, float64(12), in["featured_media"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":101,"link":"https://example.com/wall-panels-in-austin","status":"publish"}`))
	}))
	post, err := c.CreatePost(context.Background(), PostInput{
		Title:         "Wall Panels in Austin",
		Content:       "<p>body</p>",
		Slug:          "wall-panels-in-austin",
		FeaturedMedia: 12,
		Categories:    []int64{4},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), post.ID)
	assert.Equal(t, "https://example.com/wall-panels-in-austin", post.Link)
}

func TestUploadMediaMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/media", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cover.webp", header.Filename)
		assert.Equal(t, "wall panels showroom", r.FormValue("alt_text"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":12,"source_url":"https://example.com/media/cover.webp"}`))
	}))
	media, err := c.UploadMedia(context.Background(), "cover.webp", []byte{0x52, 0x49, 0x46, 0x46}, "wall panels showroom")
	require.NoError(t, err)
	assert.Equal(t, int64(12), media.ID)
}

func TestServerErrorsAreWrapped(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	_, err := c.Tags(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site unavailable")
}

func TestRejectionIncludesBodySnippet(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"rest_invalid_param"}`, http.StatusBadRequest)
	}))
	_, err := c.CreateTag(context.Background(), "panels")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rest_invalid_param")
}
