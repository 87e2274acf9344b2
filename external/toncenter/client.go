package toncenter

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/Aero25x/ton-wallet-tracker/entities"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// upper bound for one encoded transaction record, messages included
const maxRecordBytes = 64 * 1024

// responseLimit caps the response body for a page of limit records.
func responseLimit(limit int) int64 {
	return int64(max(limit, 1)+1) * maxRecordBytes
}

type transactionsResponse struct {
	Ok     bool          `json:"ok"`
	Result []transaction `json:"result"`
	Error  string        `json:"error"`
}

type transaction struct {
	Utime         int64         `json:"utime"`
	TransactionID transactionID `json:"transaction_id"`
	Fee           string        `json:"fee"`
	TotalFees     string        `json:"total_fees"`
	InMsg         *message      `json:"in_msg"`
	OutMsgs       []message     `json:"out_msgs"`
}

type transactionID struct {
	LT   string `json:"lt"`
	Hash string `json:"hash"`
}

type message struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Value       string `json:"value"`
}

// GetTransactions returns the latest transactions of the account, newest
// first. Malformed records are skipped.
func (c *Client) GetTransactions(ctx context.Context, account string, limit int) ([]entities.Tx, error) {
	query := url.Values{}
	query.Set("address", account)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("to_lt", "0")
	query.Set("archival", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/getTransactions?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", entities.ErrTransientFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling getTransactions: %w", entities.ErrTransientFetch, err)
	}
	defer res.Body.Close()

	maxBytes := responseLimit(limit)
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", entities.ErrTransientFetch, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: response exceeds [%d] bytes", entities.ErrTransientFetch, maxBytes)
	}

	var response transactionsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		if res.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%w: got status [%d]", entities.ErrTransientFetch, res.StatusCode)
		}
		return nil, fmt.Errorf("%w: decoding response: %w", entities.ErrTransientFetch, err)
	}
	if res.StatusCode >= http.StatusBadRequest || !response.Ok {
		return nil, fmt.Errorf("%w: got status [%d], api error [%s]", entities.ErrTransientFetch, res.StatusCode, response.Error)
	}

	txs, malformed := convertTransactions(response.Result)
	for _, err := range malformed {
		c.logger.Warnw("Skipping transaction record", "account", account, "error", err)
	}
	return txs, nil
}

func convertTransactions(records []transaction) ([]entities.Tx, []error) {
	txs := make([]entities.Tx, 0, len(records))
	var malformed []error

	for i, record := range records {
		tx, err := convertTransaction(record)
		if err != nil {
			malformed = append(malformed, fmt.Errorf("record [%d]: %w", i, err))
			continue
		}
		txs = append(txs, tx)
	}

	return txs, malformed
}

func convertTransaction(record transaction) (entities.Tx, error) {
	if record.TransactionID.Hash == "" {
		return entities.Tx{}, fmt.Errorf("%w: missing hash", entities.ErrMalformedRecord)
	}
	lt, err := strconv.ParseUint(record.TransactionID.LT, 10, 64)
	if err != nil {
		return entities.Tx{}, fmt.Errorf("%w: invalid lt [%s] for hash [%s]", entities.ErrMalformedRecord, record.TransactionID.LT, record.TransactionID.Hash)
	}

	fees := record.TotalFees
	if fees == "" {
		fees = record.Fee
	}

	tx := entities.Tx{
		Hash:      record.TransactionID.Hash,
		LT:        lt,
		Timestamp: record.Utime,
		Fee:       parseAmount(fees),
	}

	if record.InMsg != nil {
		value := parseAmount(record.InMsg.Value)
		if value.IsPositive() {
			tx.In = &entities.Transfer{Address: record.InMsg.Source, Value: value}
		}
	}

	for _, out := range record.OutMsgs {
		value := parseAmount(out.Value)
		if value.IsPositive() {
			tx.Out = append(tx.Out, entities.Transfer{Address: out.Destination, Value: value})
		}
	}

	return tx, nil
}

// parseAmount treats missing or unparsable amounts as zero.
func parseAmount(value string) decimal.Decimal {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return amount
}
