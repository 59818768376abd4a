package grist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gristmigrate/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", "secret", "doc42")
}

// === NewClient ===

func TestNewClient_TrailingSlash(t *testing.T) {
	c := NewClient("https://grist.example/api/", "", "doc")
	assert.Equal(t, "https://grist.example/api", c.BaseURL)
}

func TestNewClient_Timeout(t *testing.T) {
	c := NewClient("https://grist.example/api", "", "doc", WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, c.HTTPClient.Timeout)
}

func TestNewClient_RateLimitDisabledByDefault(t *testing.T) {
	c := NewClient("https://grist.example/api", "", "doc")
	assert.Nil(t, c.limiter)
	c = NewClient("https://grist.example/api", "", "doc", WithRateLimit(5, 0))
	require.NotNil(t, c.limiter)
	assert.Equal(t, 1, c.limiter.Burst())
}

// === Do ===

func TestDo_HeadersAndPath(t *testing.T) {
	var gotAuth, gotPath, gotAccept string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"tables":[]}`))
	})

	_, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "/api/docs/doc42/tables", gotPath)
}

func TestDo_CreatedIsSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tables":[{"id":"Solutions"}]}`))
	})
	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Table{{ID: "Solutions"}}, tables)
}

func TestDo_NonSuccessReturnsRequestError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"No view access"}`))
	})

	_, err := c.ListRecords(context.Background(), "Solutions", nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, VerbGet, reqErr.Verb)
	assert.Equal(t, "/docs/doc42/tables/Solutions/records", reqErr.Endpoint)
	assert.Equal(t, http.StatusForbidden, reqErr.Status)
	assert.Contains(t, reqErr.Body, "No view access")
	assert.Contains(t, err.Error(), "failed to GET")
}

func TestDo_UnknownVerb(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "doc")
	_, err := c.Do(context.Background(), Verb(99), "/x", nil, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported verb")
}

func TestVerb_String(t *testing.T) {
	assert.Equal(t, "POST", VerbPost.String())
	assert.Equal(t, "Verb(42)", Verb(42).String())
}

// === Tables & columns ===

func TestListColumns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/docs/doc42/tables/Solutions/columns", r.URL.Path)
		_, _ = w.Write([]byte(`{"columns":[
			{"id":"Nom","fields":{"label":"Nom","type":"Text","isFormula":false}},
			{"id":"Operateur","fields":{"label":"Opérateur","type":"Ref:Operateurs","isFormula":false}},
			{"id":"Nb","fields":{"label":"Nb","type":"Int","isFormula":true}}
		]}`))
	})

	cols, err := c.ListColumns(context.Background(), "Solutions")
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.Equal(t, "Operateurs", cols[1].ReferencedTable())
	assert.True(t, cols[2].IsFormula)
}

// === Records ===

func TestListRecords_Filter(t *testing.T) {
	var gotFilter string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		_, _ = w.Write([]byte(`{"records":[{"id":3,"fields":{"Nom":"A","Cibles":["L",1,2]}}]}`))
	})

	recs, err := c.ListRecords(context.Background(), "Produits", domain.Filter{"Has_page": {false}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Has_page":[false]}`, gotFilter)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].ID)
	assert.Equal(t, []int64{1, 2}, recs[0].Fields.Get("Cibles").IDs())
}

func TestCreateRecords(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`{"records":[{"id":10},{"id":11}]}`))
	})

	rows := []domain.Fields{
		{"Nom": domain.Text("A"), "Operateur": domain.Ref(2)},
		{"Nom": domain.Text("B"), "Cibles": domain.RefList(1, 3)},
	}
	created, err := c.CreateRecords(context.Background(), "Solutions", rows)
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, int64(10), created[0].ID)
	assert.Equal(t, int64(11), created[1].ID)

	records := gotBody["records"].([]any)
	second := records[1].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, []any{"L", float64(1), float64(3)}, second["Cibles"])
}

func TestCreateRecords_EmptyIsNoop(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	created, err := c.CreateRecords(context.Background(), "Solutions", nil)
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.False(t, called)
}

func TestCreateRecords_IDCountMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[{"id":1}]}`))
	})
	_, err := c.CreateRecords(context.Background(), "Solutions", []domain.Fields{{}, {}})
	require.Error(t, err)
}

func TestDeleteAllRecords(t *testing.T) {
	var deleted []int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/docs/doc42/tables/Contacts/records":
			_, _ = w.Write([]byte(`{"records":[{"id":4,"fields":{}},{"id":9,"fields":{}}]}`))
		case "/api/docs/doc42/tables/Contacts/data/delete":
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&deleted))
			_, _ = w.Write([]byte(`null`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	n, err := c.DeleteAllRecords(context.Background(), "Contacts")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{4, 9}, deleted)
}

func TestDeleteAllRecords_EmptyTableSkipsDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/docs/doc42/tables/Contacts/records" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"records":[]}`))
	})
	n, err := c.DeleteAllRecords(context.Background(), "Contacts")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// === Attachments ===

func TestUploadAttachments(t *testing.T) {
	var names []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/docs/doc42/attachments", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["upload"] {
			names = append(names, fh.Filename)
		}
		_, _ = w.Write([]byte(`[21,22]`))
	})

	ids, err := c.UploadAttachments(context.Background(), []domain.Attachment{
		{FileName: "logo.png", Data: []byte("png")},
		{FileName: "capture.jpg", Data: []byte("jpg")},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{21, 22}, ids)
	assert.Equal(t, []string{"logo.png", "capture.jpg"}, names)
}

func TestDownloadAttachment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/docs/doc42/attachments/5":
			_, _ = w.Write([]byte(`{"fileName":"logo.png","fileSize":3}`))
		case "/api/docs/doc42/attachments/5/download":
			_, _ = w.Write([]byte("png"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	att, err := c.DownloadAttachment(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "logo.png", att.FileName)
	assert.Equal(t, []byte("png"), att.Data)
}

func TestDeleteUnusedAttachments(t *testing.T) {
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, c.DeleteUnusedAttachments(context.Background()))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/docs/doc42/attachments/removeUnused", gotPath)
}
