package elastic

import (
	"context"
	"encoding/json"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const account = "UQBfuEnLEUF8JEbXpknjmxGqeZsNR2CX9MIJfZVi99M1OCEF"

var testTx = entities.Tx{
	Hash:      "c2K0bmtaXfHo4Yk0/W0b1ZbD6f9P+u2=",
	LT:        47597345000003,
	Timestamp: 1744649165,
	Fee:       decimal.NewFromInt(2764025),
	Out: []entities.Transfer{
		{Address: "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N", Value: decimal.NewFromInt(1500000000)},
	},
}

func TestCreateDocument(t *testing.T) {
	payload, err := createDocument(account, testTx)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))

	expected := map[string]any{
		"account":   account,
		"hash":      "c2K0bmtaXfHo4Yk0/W0b1ZbD6f9P+u2=",
		"lt":        "47597345000003",
		"timestamp": float64(1744649165),
		"fee":       "2764025",
		"out": []any{
			map[string]any{
				"address": "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N",
				"value":   "1500000000",
			},
		},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Fatalf("Unexpected result: %v", diff)
	}
}

type FakeElastic struct {
	status int
	method string
	path   string
	body   []byte
}

func (f *FakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.method = r.Method
	f.path = r.URL.Path
	f.body, _ = io.ReadAll(r.Body)

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(`{"result":"created"}`))
}

func newTestClient(t *testing.T, url string) *Client {
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{url},
		DisableRetry: true,
	})
	require.NoError(t, err)
	return NewClient(esClient, "ton-transactions", account)
}

func TestClient_Deliver(t *testing.T) {
	fake := &FakeElastic{status: http.StatusCreated}
	server := httptest.NewServer(fake)
	defer server.Close()

	err := newTestClient(t, server.URL).Deliver(context.Background(), testTx)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, fake.method)
	assert.Equal(t, "/ton-transactions/_doc/c2K0bmtaXfHo4Yk0_W0b1ZbD6f9P-u2=", fake.path)
	expected, err := createDocument(account, testTx)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(fake.body))
}

func TestClient_Deliver_GivenErrorResponse_ThenError(t *testing.T) {
	server := httptest.NewServer(&FakeElastic{status: http.StatusBadRequest})
	defer server.Close()

	err := newTestClient(t, server.URL).Deliver(context.Background(), testTx)
	assert.ErrorContains(t, err, "got error response from elastic")
}
