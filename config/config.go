// Package config loads store/tuning configuration from YAML, the same
// load-then-validate shape the teacher's config package used for p4
// import mapping, adapted to this engine's knobs: cache bounds,
// checkpoint thresholds, delta-direction policy, and cert trust policy
// (spec.md §4.1/§4.3/§4.7).
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/vcsforge/core/certs"
	"github.com/vcsforge/core/hash"
	"github.com/vcsforge/core/store"
)

// TrustPolicy selects how certs.EraseBogusCerts resolves a group of
// same-(ident,name,value) certs signed by different keys.
type TrustPolicy string

const (
	// TrustAny keeps a cert group as soon as at least one signer's key
	// is in the trusted set — the default, favoring availability.
	TrustAny TrustPolicy = "any"
	// TrustAll requires every signer in a group to be trusted, dropping
	// the whole group if even one signer's key is not in the trusted set.
	TrustAll TrustPolicy = "all"
)

// Config is the YAML-loadable surface over store.Config plus the
// trust-policy toggle. Zero value is not directly usable; see
// Unmarshal, which applies Default's values before parsing.
type Config struct {
	DeltaDirection string `yaml:"delta_direction"`

	VCacheMaxBytes        uint64 `yaml:"vcache_max_bytes"`
	RosterCacheMaxEntries uint64 `yaml:"roster_cache_max_entries"`
	DelayedFilesMaxBytes  uint64 `yaml:"delayed_files_max_bytes"`

	ChecksCallsBeforeCheckpoint uint64 `yaml:"checks_calls_before_checkpoint"`
	ChecksBytesBeforeCheckpoint uint64 `yaml:"checks_bytes_before_checkpoint"`

	TrustPolicy string `yaml:"trust_policy"`
}

// Default mirrors store.DefaultConfig's bounds, expressed as the
// YAML-facing Config so a caller can start from Unmarshal(nil) and only
// override what they need.
func Default() *Config {
	d := store.DefaultConfig()
	return &Config{
		DeltaDirection:              string(d.DeltaDirection),
		VCacheMaxBytes:              d.VCacheMaxBytes,
		RosterCacheMaxEntries:       d.RosterCacheMaxEntries,
		DelayedFilesMaxBytes:        d.DelayedFilesMaxBytes,
		ChecksCallsBeforeCheckpoint: d.ChecksCallsBeforeCheckpoint,
		ChecksBytesBeforeCheckpoint: d.ChecksBytesBeforeCheckpoint,
		TrustPolicy:                 string(TrustAny),
	}
}

// Unmarshal parses config over Default()'s values and validates it.
func Unmarshal(config []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(config, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and parses a YAML config file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString parses a YAML config already read into memory.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	switch store.DeltaDirection(c.DeltaDirection) {
	case store.DeltaReverse, store.DeltaForward, store.DeltaBoth:
	default:
		return fmt.Errorf("unrecognized delta_direction %q: must be reverse, forward, or both", c.DeltaDirection)
	}
	switch TrustPolicy(c.TrustPolicy) {
	case TrustAny, TrustAll:
	default:
		return fmt.Errorf("unrecognized trust_policy %q: must be any or all", c.TrustPolicy)
	}
	if c.VCacheMaxBytes == 0 {
		return fmt.Errorf("vcache_max_bytes must be positive")
	}
	if c.RosterCacheMaxEntries == 0 {
		return fmt.Errorf("roster_cache_max_entries must be positive")
	}
	return nil
}

// StoreConfig projects the tuning knobs into a store.Config, ready to
// pass to store.NewContentStore/store.NewRosterStore.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		DeltaDirection:              store.DeltaDirection(c.DeltaDirection),
		VCacheMaxBytes:              c.VCacheMaxBytes,
		RosterCacheMaxEntries:       c.RosterCacheMaxEntries,
		DelayedFilesMaxBytes:        c.DelayedFilesMaxBytes,
		ChecksCallsBeforeCheckpoint: c.ChecksCallsBeforeCheckpoint,
		ChecksBytesBeforeCheckpoint: c.ChecksBytesBeforeCheckpoint,
	}
}

// TrustFn builds the certs.TrustFn this policy implies, given the set
// of key ids (hash.KeyId.String()) the caller currently trusts (spec.md
// §4.3's trusted_signers).
func (c *Config) TrustFn(trustedKeys map[string]bool) certs.TrustFn {
	all := TrustPolicy(c.TrustPolicy) == TrustAll
	return func(signers []hash.KeyId, ident hash.RevisionId, name certs.CertName, value certs.CertValue) bool {
		if len(signers) == 0 {
			return false
		}
		for _, s := range signers {
			trusted := trustedKeys[s.String()]
			if all && !trusted {
				return false
			}
			if !all && trusted {
				return true
			}
		}
		return all
	}
}
