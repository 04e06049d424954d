// Package risk annotates pending transfers for reviewers. It only reads the record.
package risk

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/models"
)

const (
	LevelLow    = "low"
	LevelMedium = "medium"
	LevelHigh   = "high"

	maxScore = 100
)

type Factor struct {
	Factor      string `json:"factor"`
	Description string `json:"description"`
	Score       int    `json:"score"`
}

type Assessment struct {
	Score   int      `json:"score"`
	Level   string   `json:"level"`
	Factors []Factor `json:"factors"`
}

type Config struct {
	LargeAmount decimal.Decimal
	Watchlist   []string // ISO 3166 alpha-2
	Keywords    []string
	LongWait    time.Duration
}

type Assessor struct {
	largeAmount decimal.Decimal
	watchlist   map[string]struct{}
	keywords    []string
	longWait    time.Duration
}

func NewAssessor(cfg Config) *Assessor {
	a := &Assessor{
		largeAmount: cfg.LargeAmount,
		watchlist:   make(map[string]struct{}, len(cfg.Watchlist)),
		longWait:    cfg.LongWait,
	}
	if a.longWait <= 0 {
		a.longWait = 24 * time.Hour
	}
	for _, c := range cfg.Watchlist {
		a.watchlist[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			a.keywords = append(a.keywords, k)
		}
	}
	return a
}

func (a *Assessor) Assess(t models.Transfer, now time.Time) Assessment {
	factors := []Factor{}

	if a.largeAmount.IsPositive() && t.Amount.GreaterThanOrEqual(a.largeAmount) {
		factors = append(factors, Factor{
			Factor:      "large_amount",
			Description: "amount " + t.Amount.StringFixed(2) + " " + t.Currency + " is at or above " + a.largeAmount.String(),
			Score:       40,
		})
	}
	if cc := RecipientCountry(t.Recipient); cc != "" {
		if _, hit := a.watchlist[cc]; hit {
			factors = append(factors, Factor{
				Factor:      "watchlist_country",
				Description: "recipient bank is in watch-listed country " + cc,
				Score:       35,
			})
		}
	}
	if t.Description != nil {
		desc := strings.ToLower(*t.Description)
		for _, k := range a.keywords {
			if strings.Contains(desc, k) {
				factors = append(factors, Factor{
					Factor:      "keyword",
					Description: "description mentions \"" + k + "\"",
					Score:       25,
				})
				break
			}
		}
	}
	if wait := now.Sub(t.CreatedAt); t.Status == models.TransferPending && wait > a.longWait {
		factors = append(factors, Factor{
			Factor:      "long_wait",
			Description: "pending for " + wait.Truncate(time.Minute).String(),
			Score:       10,
		})
	}

	score := 0
	for _, f := range factors {
		score += f.Score
	}
	if score > maxScore {
		score = maxScore
	}
	return Assessment{Score: score, Level: level(score), Factors: factors}
}

func level(score int) string {
	switch {
	case score >= 60:
		return LevelHigh
	case score >= 30:
		return LevelMedium
	default:
		return LevelLow
	}
}

// RecipientCountry reads the country from a BIC bank code (positions 5-6), falling
// back to an IBAN prefix on the account number.
func RecipientCountry(r models.Recipient) string {
	bic := strings.ToUpper(strings.TrimSpace(r.BankCode))
	if (len(bic) == 8 || len(bic) == 11) && isLetters(bic[4:6]) {
		return bic[4:6]
	}
	acct := strings.ToUpper(strings.ReplaceAll(r.AccountNumber, " ", ""))
	if len(acct) >= 4 && isLetters(acct[:2]) && isDigits(acct[2:4]) {
		return acct[:2]
	}
	return ""
}

func isLetters(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return s != ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
