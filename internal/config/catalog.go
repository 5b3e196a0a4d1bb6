package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tillbook/tillbook/internal/ledger"
)

// Catalog files use the field names the reconciliation rules were originally
// maintained in, so existing rule sets carry over unchanged.

type ruleDoc struct {
	Rules []struct {
		ID        string   `yaml:"id"`
		Category  string   `yaml:"category"`
		Priority  int      `yaml:"priority"`
		Keywords  []string `yaml:"keywords"`
		Regex     string   `yaml:"regex"`
		AmountMin *string  `yaml:"amount_min"`
		AmountMax *string  `yaml:"amount_max"`
	} `yaml:"rules"`
}

// LoadRules reads the rule catalog. Rules are read-only during a run.
func LoadRules(path string) ([]ledger.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules catalog: %w", err)
	}
	var doc ruleDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rules catalog: %w", err)
	}
	rules := make([]ledger.Rule, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		if r.ID == "" || r.Category == "" {
			return nil, fmt.Errorf("rule missing id or category in %s", path)
		}
		rule := ledger.Rule{
			ID:         r.ID,
			CategoryID: r.Category,
			Priority:   r.Priority,
			Keywords:   r.Keywords,
			Regex:      r.Regex,
		}
		if rule.AmountMin, err = parseOptionalAmount(r.AmountMin); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		if rule.AmountMax, err = parseOptionalAmount(r.AmountMax); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

type categoryDoc struct {
	Categories []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Parent string `yaml:"parent"`
		Type   string `yaml:"type"`
	} `yaml:"categories"`
}

// LoadCategories reads the category catalog keyed by id.
func LoadCategories(path string) (map[string]ledger.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories catalog: %w", err)
	}
	var doc categoryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse categories catalog: %w", err)
	}
	out := make(map[string]ledger.Category, len(doc.Categories))
	for _, c := range doc.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("category missing id in %s", path)
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		out[c.ID] = ledger.Category{ID: c.ID, Name: name, ParentID: c.Parent, Type: c.Type}
	}
	return out, nil
}

type accountDoc struct {
	Accounts []struct {
		ID                 string  `yaml:"id"`
		Name               string  `yaml:"name"`
		Type               string  `yaml:"type"`
		OpeningBalance     *string `yaml:"opening_balance"`
		OpeningBalanceDate string  `yaml:"opening_balance_date"`
	} `yaml:"accounts"`
}

// LoadAccounts reads the account catalog. Absent balance fields mean "not yet
// known" and leave inference to the engine.
func LoadAccounts(path string) ([]ledger.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts catalog: %w", err)
	}
	var doc accountDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse accounts catalog: %w", err)
	}
	out := make([]ledger.Account, 0, len(doc.Accounts))
	for _, a := range doc.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account missing id in %s", path)
		}
		acct := ledger.Account{ID: a.ID, Name: a.Name, Type: ledger.AccountType(a.Type)}
		if acct.Name == "" {
			acct.Name = a.ID
		}
		if acct.Type == "" {
			acct.Type = ledger.AccountChecking
		}
		if acct.OpeningBalance, err = parseOptionalAmount(a.OpeningBalance); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
		if a.OpeningBalanceDate != "" {
			t, err := time.Parse(time.DateOnly, a.OpeningBalanceDate)
			if err != nil {
				return nil, fmt.Errorf("account %s: bad opening_balance_date: %w", a.ID, err)
			}
			acct.OpeningBalanceDate = &t
		}
		out = append(out, acct)
	}
	return out, nil
}

func parseOptionalAmount(s *string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", *s, err)
	}
	return &d, nil
}
