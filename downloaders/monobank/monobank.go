// Package monobank downloads personal statements from the monobank API and
// writes them as csv files for the monobank importer.
//
// See https://api.monobank.ua/docs for the API; a personal token is issued at
// https://api.monobank.ua.
package monobank

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/OSadovy/uabean"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://api.monobank.ua"

// statementWindow is the longest period a single statement request may cover.
const statementWindow = 31 * 24 * time.Hour

// ErrRateLimited reports the API's one-request-per-minute statement limit.
var ErrRateLimited = errors.New("monobank: rate limited")

// Client is a minimal monobank personal API client.
type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

func NewClient(token string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{Token: token, BaseURL: BaseURL, HTTP: client}
}

func (c *Client) headers() http.Header {
	return http.Header{"X-Token": {c.Token}}
}

// ClientInfo is the /personal/client-info response.
type ClientInfo struct {
	ClientID    string    `json:"clientId"`
	Name        string    `json:"name"`
	WebHookURL  string    `json:"webHookUrl"`
	Permissions string    `json:"permissions"`
	Accounts    []Account `json:"accounts"`
}

// Account describes one card or jar. Amounts are in minor units of the
// account currency, the currency itself is an ISO 4217 numeric code.
type Account struct {
	ID           string   `json:"id"`
	SendID       string   `json:"sendId"`
	CurrencyCode int      `json:"currencyCode"`
	CashbackType string   `json:"cashbackType"`
	Balance      int64    `json:"balance"`
	CreditLimit  int64    `json:"creditLimit"`
	Type         string   `json:"type"`
	MaskedPan    []string `json:"maskedPan"`
	IBAN         string   `json:"iban"`
}

// Currency resolves the account's numeric currency code to the letter code.
func (a *Account) Currency() (string, error) {
	return CurrencyName(a.CurrencyCode)
}

// CurrencyName resolves an ISO 4217 numeric currency code, like 980, into the
// letter code, like UAH.
func CurrencyName(code int) (string, error) {
	c := money.GetCurrencyByNumericCode(fmt.Sprintf("%03d", code))
	if c == nil {
		return "", fmt.Errorf("unknown numeric currency code %d", code)
	}
	return c.Code, nil
}

// StatementItem is one statement row. Amounts are in minor units.
type StatementItem struct {
	ID              string `json:"id"`
	Time            int64  `json:"time"`
	Description     string `json:"description"`
	MCC             int    `json:"mcc"`
	OriginalMCC     int    `json:"originalMcc"`
	Hold            bool   `json:"hold"`
	Amount          int64  `json:"amount"`
	OperationAmount int64  `json:"operationAmount"`
	CurrencyCode    int    `json:"currencyCode"`
	CommissionRate  int64  `json:"commissionRate"`
	CashbackAmount  int64  `json:"cashbackAmount"`
	Balance         int64  `json:"balance"`
}

// minor converts an amount in minor units to major units.
func minor(v int64) decimal.Decimal { return decimal.New(v, -2) }

// ClientInfo fetches the client profile with its accounts.
func (c *Client) ClientInfo() (*ClientInfo, error) {
	var info ClientInfo
	if err := uabean.FetchJSON(c.HTTP, c.BaseURL+"/personal/client-info", c.headers(), &info); err != nil {
		return nil, fmt.Errorf("monobank client-info: %w", err)
	}
	return &info, nil
}

// Statement fetches the account statement for the given period, at most 31
// days long. Returns ErrRateLimited when the API asks to slow down.
func (c *Client) Statement(accountID string, from, to time.Time) ([]StatementItem, error) {
	addr := fmt.Sprintf("%s/personal/statement/%s/%d/%d", c.BaseURL, accountID, from.Unix(), to.Unix())
	req, err := http.NewRequest(http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.headers()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monobank statement: %v", resp.Status)
	}
	var items []StatementItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("monobank statement: %w", err)
	}
	return items, nil
}

// csvHeader matches what the importer identifies statements by. The
// placeholders are filled per account.
var csvHeader = []string{
	"Дата i час операції",
	"Деталі операції",
	"MCC",
	"Сума в валюті картки ({currency})",
	"Сума в валюті операції",
	"Валюта",
	"Курс",
	"Сума комісій ({currency})",
	"Сума кешбеку ({cashback_type})",
	"Залишок після операції",
}

const notAvailable = "—"

var descriptionReplacer = strings.NewReplacer("\n", " ", "\r", "")

// statementWriter renders statement items the way the mobile app's csv export
// does.
type statementWriter struct {
	w        *csv.Writer
	currency string
}

func newStatementWriter(w io.Writer, account *Account, currency string) (*statementWriter, error) {
	sw := &statementWriter{w: csv.NewWriter(w), currency: currency}
	header := make([]string, len(csvHeader))
	for i, h := range csvHeader {
		h = strings.ReplaceAll(h, "{currency}", currency)
		h = strings.ReplaceAll(h, "{cashback_type}", account.CashbackType)
		header[i] = h
	}
	return sw, sw.w.Write(header)
}

func (sw *statementWriter) writeItem(i *StatementItem) error {
	currency, err := CurrencyName(i.CurrencyCode)
	if err != nil {
		return err
	}
	rate := notAvailable
	if currency != sw.currency {
		rate = minor(i.OperationAmount).Div(minor(i.Amount)).Round(6).String()
	}
	commission := notAvailable
	if i.CommissionRate != 0 {
		commission = minor(i.CommissionRate).String()
	}
	cashback := notAvailable
	if i.CashbackAmount != 0 {
		cashback = minor(i.CashbackAmount).String()
	}
	return sw.w.Write([]string{
		time.Unix(i.Time, 0).Format("02.01.2006 15:04:05"),
		descriptionReplacer.Replace(i.Description),
		strconv.Itoa(i.MCC),
		minor(i.Amount).String(),
		minor(i.OperationAmount).String(),
		currency,
		rate,
		commission,
		cashback,
		minor(i.Balance).String(),
	})
}

func (sw *statementWriter) flush() error {
	sw.w.Flush()
	return sw.w.Error()
}

// Downloader fetches statements for all matching accounts and writes one csv
// file per account, named so the importer can resolve the ledger account.
type Downloader struct {
	Client *Client
	// Currency and AccountType filter the accounts; empty matches all.
	Currency    string
	AccountType string
	OutputDir   string
	// Throttle is the pause between statement requests and the backoff on
	// rate limiting. The API allows one statement request per minute.
	Throttle time.Duration

	sleep func(time.Duration)
}

func NewDownloader(client *Client) *Downloader {
	return &Downloader{Client: client, Throttle: time.Minute, sleep: time.Sleep}
}

func (d *Downloader) accounts() ([]Account, error) {
	info, err := d.Client.ClientInfo()
	if err != nil {
		return nil, err
	}
	var accounts []Account
	for _, a := range info.Accounts {
		currency, err := a.Currency()
		if err != nil {
			return nil, err
		}
		if d.Currency != "" && currency != d.Currency {
			continue
		}
		if d.AccountType != "" && a.Type != d.AccountType {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// statement retries around the rate limit.
func (d *Downloader) statement(accountID string, from, to time.Time) ([]StatementItem, error) {
	for {
		items, err := d.Client.Statement(accountID, from, to)
		if !errors.Is(err, ErrRateLimited) {
			return items, err
		}
		log.Printf("rate limit encountered, waiting")
		d.sleep(d.Throttle)
	}
}

// Run downloads the statements of all matching accounts between start and end
// in 31-day windows and returns the paths of the written files.
func (d *Downloader) Run(start, end time.Time) ([]string, error) {
	if now := time.Now(); end.After(now) {
		end = now
	}
	accounts, err := d.accounts()
	if err != nil {
		return nil, err
	}

	type output struct {
		file *os.File
		sw   *statementWriter
	}
	outputs := make(map[string]*output, len(accounts))
	var paths []string
	for i := range accounts {
		account := &accounts[i]
		currency, _ := account.Currency()
		name := fmt.Sprintf("monobank-%s-%s_%s.csv", account.Type, currency, end.Format("02-01-06_15-04-05"))
		path := filepath.Join(d.OutputDir, name)
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		sw, err := newStatementWriter(file, account, currency)
		if err != nil {
			file.Close()
			return nil, err
		}
		outputs[account.ID] = &output{file: file, sw: sw}
		paths = append(paths, path)
	}
	defer func() {
		for _, out := range outputs {
			out.file.Close()
		}
	}()

	for windowStart := start; windowStart.Before(end); windowStart = windowStart.Add(statementWindow) {
		windowEnd := windowStart.Add(statementWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}
		for i := range accounts {
			account := &accounts[i]
			log.Printf("downloading %s statement starting %s", account.Type, windowStart.Format("2006-01-02"))
			items, err := d.statement(account.ID, windowStart, windowEnd)
			if err != nil {
				return nil, err
			}
			sort.Slice(items, func(a, b int) bool { return items[a].Time < items[b].Time })
			out := outputs[account.ID]
			for j := range items {
				if err := out.sw.writeItem(&items[j]); err != nil {
					return nil, err
				}
			}
			d.sleep(d.Throttle)
		}
	}

	for _, out := range outputs {
		if err := out.sw.flush(); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
