package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleSet is the immutable transaction policy. Loaded once per path;
// the engine swaps whole snapshots on reload rather than mutating.
type RuleSet struct {
	// MaxAmount is the hard ceiling on any single transfer.
	MaxAmount int64 `yaml:"max_amount"`

	// HighValueThreshold is the amount above which transfers are
	// restricted to HighValueDestination.
	HighValueThreshold int64 `yaml:"high_value_threshold"`

	// HighValueDestination is the only account allowed to receive
	// transfers above the threshold.
	HighValueDestination string `yaml:"high_value_destination"`

	// Principal is the fixed authenticated sender. Caller-supplied
	// sender fields are never trusted; this value is substituted.
	Principal string `yaml:"principal"`

	// ConfirmTimeout bounds how long a proposed action may wait for
	// confirmation. Zero disables expiry.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// file mirrors the on-disk layout: rules live under a top-level key so
// the file can grow unrelated sections later.
type file struct {
	TransactionRules RuleSet `yaml:"transaction_rules"`
}

// UnmarshalYAML decodes the rule set, parsing confirm_timeout from a Go
// duration string ("5m", "90s"). Fields absent from the document keep
// the values already on the receiver.
func (rs *RuleSet) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		MaxAmount            int64  `yaml:"max_amount"`
		HighValueThreshold   int64  `yaml:"high_value_threshold"`
		HighValueDestination string `yaml:"high_value_destination"`
		Principal            string `yaml:"principal"`
		ConfirmTimeout       string `yaml:"confirm_timeout"`
	}
	p := plain{
		MaxAmount:            rs.MaxAmount,
		HighValueThreshold:   rs.HighValueThreshold,
		HighValueDestination: rs.HighValueDestination,
		Principal:            rs.Principal,
	}
	if err := value.Decode(&p); err != nil {
		return err
	}

	rs.MaxAmount = p.MaxAmount
	rs.HighValueThreshold = p.HighValueThreshold
	rs.HighValueDestination = p.HighValueDestination
	rs.Principal = p.Principal
	if p.ConfirmTimeout != "" {
		d, err := time.ParseDuration(p.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("confirm_timeout: %w", err)
		}
		rs.ConfirmTimeout = d
	}
	return nil
}

// Default returns the built-in rule set matching the shipped dataset.
func Default() *RuleSet {
	return &RuleSet{
		MaxAmount:            10000,
		HighValueThreshold:   8000,
		HighValueDestination: "Account_D",
		Principal:            "USER_ACCOUNT",
	}
}

// Load reads a rule set from a YAML file.
// Empty path or missing file returns defaults. Invalid YAML or an
// invalid rule set returns an error.
func Load(path string) (*RuleSet, error) {
	rs, _, err := LoadWithHash(path)
	return rs, err
}

// LoadWithHash loads a rule set and returns the SHA-256 hash of the
// effective configuration, for stamping audit entries.
func LoadWithHash(path string) (*RuleSet, string, error) {
	if path == "" {
		rs := Default()
		return rs, hashOf(rs), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			rs := Default()
			return rs, hashOf(rs), nil
		}
		return nil, "", fmt.Errorf("rules: read %s: %w", path, err)
	}

	var f file
	f.TransactionRules = *Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("rules: parse %s: %w", path, err)
	}

	rs := f.TransactionRules
	if err := rs.Validate(); err != nil {
		return nil, "", fmt.Errorf("rules: %s: %w", path, err)
	}

	return &rs, hashOf(&rs), nil
}

// Validate rejects rule sets that cannot be enforced coherently.
func (rs *RuleSet) Validate() error {
	if rs.MaxAmount <= 0 {
		return fmt.Errorf("max_amount must be positive, got %d", rs.MaxAmount)
	}
	if rs.HighValueThreshold >= rs.MaxAmount {
		// A threshold at or above the ceiling makes the high-value
		// routing rule unreachable.
		return fmt.Errorf("high_value_threshold %d must be below max_amount %d",
			rs.HighValueThreshold, rs.MaxAmount)
	}
	if rs.HighValueDestination == "" {
		return fmt.Errorf("high_value_destination must not be empty")
	}
	if rs.Principal == "" {
		return fmt.Errorf("principal must not be empty")
	}
	if rs.ConfirmTimeout < 0 {
		return fmt.Errorf("confirm_timeout must not be negative")
	}
	return nil
}

// Snapshot returns the rule set as a flat record for history entries
// and the get_rules tool.
func (rs *RuleSet) Snapshot() map[string]any {
	return map[string]any{
		"max_amount":             rs.MaxAmount,
		"high_value_threshold":   rs.HighValueThreshold,
		"high_value_destination": rs.HighValueDestination,
		"principal":              rs.Principal,
	}
}

func hashOf(rs *RuleSet) string {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return "sha256:unknown"
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
