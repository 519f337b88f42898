package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/OSadovy/uabean"
	"github.com/OSadovy/uabean/importers/alfabusiness"
	"github.com/OSadovy/uabean/importers/ibkr"
	"github.com/OSadovy/uabean/importers/kraken"
	"github.com/OSadovy/uabean/importers/monobank"
	"github.com/OSadovy/uabean/importers/privatbank"
	"github.com/OSadovy/uabean/importers/procreditbusiness"
	"github.com/OSadovy/uabean/importers/ukrsibbusiness"
	"github.com/OSadovy/uabean/importers/wise"
)

// Config selects and configures the importers. Each present section enables
// its importer; composite account keys are written "first/second", e.g.
// "black/UAH" for a monobank card type and currency, or "UAH/UA93..." for a
// business account currency and IBAN.
type Config struct {
	Monobank          *MonobankConfig   `json:"monobank,omitempty"`
	Privatbank        *PrivatbankConfig `json:"privatbank,omitempty"`
	Alfabusiness      *BusinessConfig   `json:"alfabusiness,omitempty"`
	Ukrsibbusiness    *BusinessConfig   `json:"ukrsibbusiness,omitempty"`
	Procreditbusiness *BusinessConfig   `json:"procreditbusiness,omitempty"`
	Wise              *WiseConfig       `json:"wise,omitempty"`
	IBKR              *IBKRConfig       `json:"ibkr,omitempty"`
	Kraken            *KrakenConfig     `json:"kraken,omitempty"`
}

type MonobankConfig struct {
	// Accounts maps "type/currency" to the ledger account.
	Accounts map[string]string `json:"accounts"`
	// FetchCategories resolves MCC codes to category names at extract time.
	FetchCategories bool `json:"fetch_categories,omitempty"`
}

type PrivatbankConfig struct {
	// Cards maps the card label of the statement to the ledger account.
	Cards      map[string]string `json:"cards"`
	FeeAccount string            `json:"fee_account,omitempty"`
}

// BusinessConfig configures one of the business-bank importers. Accounts
// maps "currency/account-number" (IBAN for Sense Bank) to the ledger
// account.
type BusinessConfig struct {
	Accounts   map[string]string `json:"accounts"`
	FeeAccount string            `json:"fee_account,omitempty"`
}

type WiseConfig struct {
	// AccountTemplate is expanded per statement file, e.g.
	// "Assets:Wise:{profile}:{currency}".
	AccountTemplate string `json:"account_template"`
	FeesAccount     string `json:"fees_account,omitempty"`
}

type IBKRConfig struct {
	CashAccount            string `json:"cash_account,omitempty"`
	AssetsAccount          string `json:"assets_account,omitempty"`
	DivAccount             string `json:"div_account,omitempty"`
	InterestAccount        string `json:"interest_account,omitempty"`
	WHTAccount             string `json:"wht_account,omitempty"`
	FeesAccount            string `json:"fees_account,omitempty"`
	PnLAccount             string `json:"pnl_account,omitempty"`
	IgnoreExistingHoldings bool   `json:"ignore_existing_holdings,omitempty"`
}

type KrakenConfig struct{}

// LoadConfig reads the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %q: %w", path, err)
	}
	return &cfg, nil
}

// splitKey splits a composite "first/second" account key.
func splitKey(key string) (string, string, error) {
	first, second, ok := strings.Cut(key, "/")
	if !ok {
		return "", "", fmt.Errorf("account key %q: want two parts separated by /", key)
	}
	return first, second, nil
}

func monobankAccounts(m map[string]string) (map[monobank.AccountKey]string, error) {
	accounts := make(map[monobank.AccountKey]string, len(m))
	for key, account := range m {
		typ, currency, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		accounts[monobank.AccountKey{Type: typ, Currency: currency}] = account
	}
	return accounts, nil
}

func alfaAccounts(m map[string]string) (map[alfabusiness.AccountKey]string, error) {
	accounts := make(map[alfabusiness.AccountKey]string, len(m))
	for key, account := range m {
		currency, iban, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		accounts[alfabusiness.AccountKey{Currency: currency, IBAN: iban}] = account
	}
	return accounts, nil
}

func ukrsibAccounts(m map[string]string) (map[ukrsibbusiness.AccountKey]string, error) {
	accounts := make(map[ukrsibbusiness.AccountKey]string, len(m))
	for key, account := range m {
		currency, number, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		accounts[ukrsibbusiness.AccountKey{Currency: currency, Number: number}] = account
	}
	return accounts, nil
}

func procreditAccounts(m map[string]string) (map[procreditbusiness.AccountKey]string, error) {
	accounts := make(map[procreditbusiness.AccountKey]string, len(m))
	for key, account := range m {
		currency, number, err := splitKey(key)
		if err != nil {
			return nil, err
		}
		accounts[procreditbusiness.AccountKey{Currency: currency, Number: number}] = account
	}
	return accounts, nil
}

// Importers builds the configured importer set. client is used for the
// optional monobank MCC table download; nil skips it.
func (cfg *Config) Importers(client *http.Client) ([]uabean.Importer, error) {
	var importers []uabean.Importer
	if c := cfg.Monobank; c != nil {
		accounts, err := monobankAccounts(c.Accounts)
		if err != nil {
			return nil, fmt.Errorf("monobank: %w", err)
		}
		var categories map[string]string
		if c.FetchCategories && client != nil {
			categories, err = monobank.FetchCategories(client)
			if err != nil {
				log.Printf("warning: %v, MCC codes will stay unresolved", err)
			}
		}
		importers = append(importers, monobank.New(accounts, categories))
	}
	if c := cfg.Privatbank; c != nil {
		importers = append(importers, privatbank.New(c.Cards, c.FeeAccount))
	}
	if c := cfg.Alfabusiness; c != nil {
		accounts, err := alfaAccounts(c.Accounts)
		if err != nil {
			return nil, fmt.Errorf("alfabusiness: %w", err)
		}
		importers = append(importers, alfabusiness.New(accounts, c.FeeAccount))
	}
	if c := cfg.Ukrsibbusiness; c != nil {
		accounts, err := ukrsibAccounts(c.Accounts)
		if err != nil {
			return nil, fmt.Errorf("ukrsibbusiness: %w", err)
		}
		importers = append(importers, ukrsibbusiness.New(accounts, c.FeeAccount))
	}
	if c := cfg.Procreditbusiness; c != nil {
		accounts, err := procreditAccounts(c.Accounts)
		if err != nil {
			return nil, fmt.Errorf("procreditbusiness: %w", err)
		}
		importers = append(importers, procreditbusiness.New(accounts, c.FeeAccount))
	}
	if c := cfg.Wise; c != nil {
		importers = append(importers, wise.New(c.AccountTemplate, c.FeesAccount))
	}
	if c := cfg.IBKR; c != nil {
		imp := ibkr.New()
		if c.CashAccount != "" {
			imp.CashAccount = c.CashAccount
		}
		if c.AssetsAccount != "" {
			imp.AssetsAccount = c.AssetsAccount
		}
		if c.DivAccount != "" {
			imp.DivAccount = c.DivAccount
		}
		if c.InterestAccount != "" {
			imp.InterestAccount = c.InterestAccount
		}
		if c.WHTAccount != "" {
			imp.WHTAccount = c.WHTAccount
		}
		if c.FeesAccount != "" {
			imp.FeesAccount = c.FeesAccount
		}
		if c.PnLAccount != "" {
			imp.PnLAccount = c.PnLAccount
		}
		imp.UseExistingHoldings = !c.IgnoreExistingHoldings
		importers = append(importers, imp)
	}
	if cfg.Kraken != nil {
		importers = append(importers, kraken.New())
	}
	if len(importers) == 0 {
		return nil, fmt.Errorf("config enables no importers")
	}
	return importers, nil
}
