// Package predict fills in the balancing leg of imported transactions,
// trained on the account choices already made in the existing ledger.
//
// The classifier is a weighted token-frequency centroid over the payee,
// narration, category metadata and day of month of each transaction: one
// centroid per seen account combination, nearest centroid by cosine
// similarity wins. Predicted postings carry the "P" flag so a later run can
// revise them and a human can spot them.
package predict

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/OSadovy/uabean"
)

// PredictedFlag marks postings written by the predictor.
const PredictedFlag = "P"

// Weights set how much each transaction attribute contributes to the
// feature vector. Zero disables the attribute.
type Weights struct {
	Category  float64
	Payee     float64
	Narration float64
	Day       float64
}

// Config is a per-provider predictor profile, selected by the import
// account.
type Config struct {
	Name            string
	AccountPattern  *regexp.Regexp
	IgnoredAccounts []string
	Weights         Weights
}

// Configs are the known provider profiles, tried in order.
var Configs = []*Config{
	{
		Name:            "wise",
		AccountPattern:  regexp.MustCompile(`Wise:Personal`),
		IgnoredAccounts: []string{"Expenses:Fees:Wise"},
		Weights:         Weights{Category: 0.8, Payee: 0.5, Day: 0.1},
	},
	{
		Name:           "monobank",
		AccountPattern: regexp.MustCompile(`Monobank`),
		IgnoredAccounts: []string{
			"Expenses:Fees:Wise",
			"Assets:Monobank:Receivable:Cashback",
			"Income:Cashback:Monobank",
			"Expenses:Taxes",
			"Income:Monobank:Interest",
		},
		Weights: Weights{Category: 0.8, Payee: 0.5, Day: 0.1},
	},
	{
		Name:            "sensebank",
		AccountPattern:  regexp.MustCompile(`Alfabank`),
		IgnoredAccounts: []string{"Expenses:Fees"},
		Weights:         Weights{Category: 0.8, Payee: 0.5, Narration: 0.5, Day: 0.1},
	},
	{
		Name:            "privatbank",
		AccountPattern:  regexp.MustCompile(`Privat`),
		IgnoredAccounts: []string{"Expenses:Fees"},
		Weights:         Weights{Category: 0.6, Narration: 0.5, Day: 0.1},
	},
}

// ConfigFor returns the first profile whose pattern matches one of the
// import accounts, or nil.
func ConfigFor(accounts []string) *Config {
	for _, cfg := range Configs {
		for _, account := range accounts {
			if cfg.AccountPattern.MatchString(account) {
				return cfg
			}
		}
	}
	return nil
}

// Predictor predicts the balancing posting of transactions imported to the
// main accounts. Zero value is unusable; construct with New and call Train
// before Process.
type Predictor struct {
	MainAccounts        []string
	IgnoredAccounts     []string
	BlacklistedAccounts []string
	Weights             Weights

	centroids map[string]vector
	// constant is set instead of centroids when training saw only one
	// account combination.
	constant string
	trained  bool
}

// New builds a predictor for the given import accounts. cfg may be nil, in
// which case default weights over payee and narration are used.
func New(cfg *Config, mainAccounts []string) *Predictor {
	p := &Predictor{
		MainAccounts: mainAccounts,
		Weights:      Weights{Payee: 0.5, Narration: 0.5, Day: 0.1},
	}
	if cfg != nil {
		p.IgnoredAccounts = cfg.IgnoredAccounts
		p.Weights = cfg.Weights
	}
	p.BlacklistedAccounts = append([]string{"Equity:Opening-Balances", "Expenses:Fraud"}, p.IgnoredAccounts...)
	return p
}

type vector map[string]float64

func (v vector) add(other vector) {
	for k, w := range other {
		v[k] += w
	}
}

func (v vector) norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

func cosine(a, b vector) float64 {
	var dot float64
	for k, w := range a {
		dot += w * b[k]
	}
	na, nb := a.norm(), b.norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

var tokenRe = regexp.MustCompile(`[\p{L}\d]+`)

func tokens(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// features builds the weighted token vector of a transaction.
func (p *Predictor) features(tx *uabean.Transaction) vector {
	v := make(vector)
	addTokens := func(prefix, s string, weight float64) {
		if weight == 0 {
			return
		}
		for _, tok := range tokens(s) {
			v[prefix+tok] += weight
		}
	}
	addTokens("payee:", tx.Payee, p.Weights.Payee)
	addTokens("narration:", tx.Narration, p.Weights.Narration)
	addTokens("category:", tx.Meta[uabean.MetaCategory], p.Weights.Category)
	addTokens("category:", tx.Meta["src_category"], p.Weights.Category)
	if p.Weights.Day != 0 {
		v["day:"+strconv.Itoa(tx.Date.Day())] += p.Weights.Day
	}
	return v
}

func (p *Predictor) isMain(account string) bool {
	for _, a := range p.MainAccounts {
		if a == account {
			return true
		}
	}
	return false
}

func containsAny(account string, list []string) bool {
	for _, item := range list {
		if strings.Contains(account, item) {
			return true
		}
	}
	return false
}

// trainable reports whether a transaction is usable as training data: it
// must touch a main account and have at least one categorized leg beyond the
// main, blacklisted and previously predicted ones.
func (p *Predictor) trainable(tx *uabean.Transaction) bool {
	accounts := make(map[string]bool)
	counted := 0
	foundMain := false
	for _, posting := range tx.Postings {
		accounts[posting.Account] = true
		switch {
		case p.isMain(posting.Account):
			foundMain = true
			counted++
		case containsAny(posting.Account, p.BlacklistedAccounts) || posting.Flag == PredictedFlag:
			counted++
		}
	}
	return foundMain && len(accounts) > counted
}

// needsPrediction reports whether a transaction is missing its balancing
// leg.
func (p *Predictor) needsPrediction(tx *uabean.Transaction) bool {
	nonIgnored := 0
	for _, posting := range tx.Postings {
		ignored := containsAny(posting.Account, p.IgnoredAccounts)
		if !ignored {
			nonIgnored++
		}
		if !p.isMain(posting.Account) && !ignored && posting.Flag != PredictedFlag {
			return false
		}
	}
	return nonIgnored < 2
}

// target is the account combination a training transaction teaches.
func (p *Predictor) target(tx *uabean.Transaction) string {
	var accounts []string
	for _, posting := range tx.Postings {
		if p.isMain(posting.Account) || containsAny(posting.Account, p.BlacklistedAccounts) {
			continue
		}
		accounts = append(accounts, posting.Account)
	}
	return strings.Join(accounts, " ")
}

// Train fits the predictor on the existing ledger. With no usable training
// data it logs and leaves the predictor a no-op.
func (p *Predictor) Train(entries []uabean.Directive) {
	p.trained = false
	p.constant = ""
	p.centroids = make(map[string]vector)

	seen := 0
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		seen++
		if !p.trainable(tx) {
			continue
		}
		target := p.target(tx)
		if target == "" {
			continue
		}
		centroid, ok := p.centroids[target]
		if !ok {
			centroid = make(vector)
			p.centroids[target] = centroid
		}
		centroid.add(p.features(tx))
	}

	switch len(p.centroids) {
	case 0:
		if seen > 0 {
			log.Printf("cannot train the predictor: none of the %d transactions match the accounts", seen)
		} else {
			log.Printf("cannot train the predictor: no training data found")
		}
	case 1:
		for target := range p.centroids {
			p.constant = target
		}
		p.trained = true
	default:
		p.trained = true
	}
}

// predict returns the nearest account combination. Ties break towards the
// lexically smallest target so runs are deterministic.
func (p *Predictor) predict(tx *uabean.Transaction) string {
	if p.constant != "" {
		return p.constant
	}
	targets := make([]string, 0, len(p.centroids))
	for target := range p.centroids {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	v := p.features(tx)
	best, bestScore := targets[0], -1.0
	for _, target := range targets {
		if score := cosine(v, p.centroids[target]); score > bestScore {
			best, bestScore = target, score
		}
	}
	return best
}

// apply writes the prediction into the transaction, reusing a previously
// predicted posting when present.
func apply(tx *uabean.Transaction, prediction string) {
	for i := range tx.Postings {
		if tx.Postings[i].Flag == PredictedFlag {
			tx.Postings[i] = uabean.Posting{Account: prediction, Flag: PredictedFlag}
			return
		}
	}
	tx.Postings = append(tx.Postings, uabean.Posting{Account: prediction, Flag: PredictedFlag})
}

// Process predicts the balancing leg of every transaction that needs one,
// modifying them in place, and returns the modified transactions. start
// limits prediction to transactions on or after that date; zero means all.
func (p *Predictor) Process(entries []uabean.Directive, start uabean.Date) []*uabean.Transaction {
	if !p.trained {
		return nil
	}
	var predicted []*uabean.Transaction
	for _, entry := range entries {
		tx, ok := entry.(*uabean.Transaction)
		if !ok {
			continue
		}
		if !start.IsZero() && tx.Date.Before(start) {
			continue
		}
		if !p.needsPrediction(tx) {
			continue
		}
		apply(tx, p.predict(tx))
		predicted = append(predicted, tx)
	}
	if predicted == nil {
		log.Printf("no transactions need prediction")
	}
	return predicted
}

// SuggestAccount implements Suggester with the trained classifier.
func (p *Predictor) SuggestAccount(_ context.Context, tx *uabean.Transaction) (string, error) {
	if !p.trained {
		return "", fmt.Errorf("predictor is not trained")
	}
	return p.predict(tx), nil
}
