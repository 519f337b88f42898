// Package wise downloads balance statements from the Wise API.
//
// Statement endpoints are protected by strong customer authentication: the
// first request is rejected with 403 and a one-time token in the
// x-2fa-approval header, which must be signed with the RSA key registered on
// the Wise profile and sent back. See
// https://docs.wise.com/api-docs/features/strong-customer-authentication-2fa.
package wise

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/OSadovy/uabean"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://api.transferwise.com"

// Client is a minimal Wise API client.
type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
	// PrivateKey signs SCA challenges; statement downloads fail without it.
	PrivateKey *rsa.PrivateKey
}

func NewClient(token string, key *rsa.PrivateKey, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{Token: token, BaseURL: BaseURL, HTTP: client, PrivateKey: key}
}

// LoadPrivateKey reads an RSA private key from a PEM file, as generated by
// "openssl genrsa" when registering the key with Wise.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an RSA private key", path)
	}
	return key, nil
}

func (c *Client) headers() http.Header {
	return http.Header{"Authorization": {"Bearer " + c.Token}}
}

// Profile is one Wise profile of the token's user, personal or business.
type Profile struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Profiles lists the profiles the token has access to.
func (c *Client) Profiles() ([]Profile, error) {
	var profiles []Profile
	if err := uabean.FetchJSON(c.HTTP, c.BaseURL+"/v1/profiles", c.headers(), &profiles); err != nil {
		return nil, fmt.Errorf("wise profiles: %w", err)
	}
	return profiles, nil
}

// BalanceAccount is one currency balance of a profile.
type BalanceAccount struct {
	ID           int64  `json:"id"`
	Currency     string `json:"currency"`
	CreationTime string `json:"creationTime"`
}

// BalanceAccounts lists the standard currency balances of a profile.
func (c *Client) BalanceAccounts(profileID int64) ([]BalanceAccount, error) {
	var accounts []BalanceAccount
	addr := fmt.Sprintf("%s/v4/profiles/%d/balances?types=STANDARD", c.BaseURL, profileID)
	if err := uabean.FetchJSON(c.HTTP, addr, c.headers(), &accounts); err != nil {
		return nil, fmt.Errorf("wise balances: %w", err)
	}
	return accounts, nil
}

// signSCA signs the one-time token of a rejected request.
func (c *Client) signSCA(oneTimeToken string) (string, error) {
	if c.PrivateKey == nil {
		return "", errors.New("wise: SCA challenge received but no private key is configured")
	}
	digest := sha256.Sum256([]byte(oneTimeToken))
	signature, err := rsa.SignPKCS1v15(rand.Reader, c.PrivateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("wise: cannot sign SCA token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// BalanceStatement fetches a balance statement in the given format, "json" or
// "csv", answering the SCA challenge when the API raises one.
func (c *Client) BalanceStatement(profileID, accountID int64, currency string, start, end time.Time, format string) ([]byte, error) {
	params := url.Values{
		"currency":      {currency},
		"intervalStart": {start.UTC().Format(time.RFC3339)},
		"intervalEnd":   {end.UTC().Format(time.RFC3339)},
		"type":          {"COMPACT"},
	}
	addr := fmt.Sprintf("%s/v1/profiles/%d/balance-statements/%d/statement.%s?%s",
		c.BaseURL, profileID, accountID, format, params.Encode())

	resp, err := c.get(addr, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden {
		oneTimeToken := resp.Header.Get("x-2fa-approval")
		resp.Body.Close()
		if oneTimeToken == "" {
			return nil, fmt.Errorf("wise statement: %v", resp.Status)
		}
		signature, err := c.signSCA(oneTimeToken)
		if err != nil {
			return nil, err
		}
		resp, err = c.get(addr, http.Header{
			"x-2fa-approval": {oneTimeToken},
			"X-Signature":    {signature},
		})
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wise statement: %v", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) get(addr string, extra http.Header) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header = c.headers()
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// Downloader fetches the balance statements of all matching profiles and
// writes one file per currency balance, named so the importer can resolve the
// ledger account.
type Downloader struct {
	Client *Client
	// ProfileType and Currency filter what is downloaded; empty matches all.
	ProfileType string
	Currency    string
	// Format is "json" or "csv"; the json importer reads the former.
	Format    string
	OutputDir string
}

func NewDownloader(client *Client) *Downloader {
	return &Downloader{Client: client, Format: "json"}
}

// Run downloads statements between start and end and returns the paths of the
// written files. A zero start falls back to each balance's creation time.
func (d *Downloader) Run(start, end time.Time) ([]string, error) {
	profiles, err := d.Client.Profiles()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, profile := range profiles {
		if d.ProfileType != "" && profile.Type != d.ProfileType {
			continue
		}
		accounts, err := d.Client.BalanceAccounts(profile.ID)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			if d.Currency != "" && account.Currency != d.Currency {
				continue
			}
			accountStart := start
			if created, err := time.Parse(time.RFC3339, account.CreationTime); err == nil {
				if accountStart.IsZero() || created.After(accountStart) {
					accountStart = created
				}
			}
			if !end.After(accountStart) {
				continue
			}
			statement, err := d.Client.BalanceStatement(profile.ID, account.ID, account.Currency, accountStart, end, d.Format)
			if err != nil {
				return nil, err
			}
			if len(bytes.TrimSpace(statement)) == 0 {
				continue
			}
			if d.Format == "json" {
				var indented json.RawMessage = statement
				var buf []byte
				if buf, err = json.MarshalIndent(indented, "", "    "); err == nil {
					statement = buf
				}
			}
			name := fmt.Sprintf("wise-%s-%s_%s-%s.%s", profile.Type,
				accountStart.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"),
				account.Currency, d.Format)
			path := filepath.Join(d.OutputDir, name)
			if err := os.WriteFile(path, statement, 0o644); err != nil {
				return nil, err
			}
			log.Printf("wrote %s", name)
			paths = append(paths, path)
		}
	}
	return paths, nil
}
