package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/elastic/go-elasticsearch/v8"
	"strings"
)

// Client indexes new transactions. The transaction hash is the document id
// so that indexing the same transaction twice does not duplicate it.
type Client struct {
	esClient  *elasticsearch.Client
	indexName string
	account   string
}

func NewClient(esClient *elasticsearch.Client, indexName, account string) *Client {
	return &Client{
		esClient:  esClient,
		indexName: indexName,
		account:   account,
	}
}

type txDocument struct {
	Account string `json:"account"`
	entities.Tx
}

func (c *Client) Deliver(ctx context.Context, tx entities.Tx) error {
	payload, err := createDocument(c.account, tx)
	if err != nil {
		return err
	}

	res, err := c.esClient.Index(
		c.indexName,
		bytes.NewReader(payload),
		c.esClient.Index.WithContext(ctx),
		c.esClient.Index.WithDocumentID(documentID(tx.Hash)),
	)
	if err != nil {
		return fmt.Errorf("indexing transaction [%s]: %w", tx.Hash, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("got error response from elastic for transaction [%s]: %s", tx.Hash, res.String())
	}
	return nil
}

// transaction hashes are standard base64, ids go into the url path
var idReplacer = strings.NewReplacer("+", "-", "/", "_")

func documentID(hash string) string {
	return idReplacer.Replace(hash)
}

func createDocument(account string, tx entities.Tx) ([]byte, error) {
	payload, err := json.Marshal(txDocument{Account: account, Tx: tx})
	if err != nil {
		return nil, fmt.Errorf("marshalling transaction [%s]: %w", tx.Hash, err)
	}
	return payload, nil
}
