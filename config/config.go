package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/coresig/signer/crypto"
)

// StaleNodeNackPolicy governs the stale-view back-off governor: the
// fraction of the signer set whose NACKs force a back-off, and how long
// the back-off window lasts. A nil policy disables NACK processing
// entirely.
type StaleNodeNackPolicy struct {
	NackThresholdPercent uint32 `json:"nack_threshold_percent"` // 0..=100, of num_signers
	BackOffDurationMs    uint64 `json:"back_off_duration_ms"`
}

// BackOffDuration returns the back-off window as a time.Duration.
func (p *StaleNodeNackPolicy) BackOffDuration() time.Duration {
	return time.Duration(p.BackOffDurationMs) * time.Millisecond
}

// DefaultStaleNodeNackPolicy mirrors the conservative defaults of the
// original signer: a clear majority of peers must report a newer chain
// view before this signer assumes its own is stale and backs off.
func DefaultStaleNodeNackPolicy() *StaleNodeNackPolicy {
	return &StaleNodeNackPolicy{
		NackThresholdPercent: 60,
		BackOffDurationMs:    30_000,
	}
}

// SignerConfig holds all configuration for a single signer process, one
// reward cycle at a time.
type SignerConfig struct {
	SignerID     string `json:"signer_id"`     // this signer's compressed pubkey hex
	DataDir      string `json:"data_dir"`      // LevelDB block-store location
	KeystorePath string `json:"keystore_path"` // encrypted ECDSA key file; password via SIGNER_KEYSTORE_PASSWORD

	Mainnet bool `json:"mainnet"` // this signer's network flag

	RegisteredSigners []string `json:"registered_signers"` // compressed pubkey hexes, cycle signer set

	ChainRPCEndpoint  string `json:"chain_rpc_endpoint"`
	ChainRPCAuthToken string `json:"chain_rpc_auth_token,omitempty"`
	BulletinEndpoint  string `json:"bulletin_endpoint"`

	TLS *TLSConfig `json:"tls,omitempty"` // optional client TLS for the two endpoints above

	// StaleNodeNackPolicy is optional: when nil, this signer neither emits
	// NACKs nor backs off on receiving them. Load starts from
	// DefaultConfig, so a config file that omits the field gets
	// DefaultStaleNodeNackPolicy; an explicit null disables it.
	StaleNodeNackPolicy *StaleNodeNackPolicy `json:"stale_node_nack_policy,omitempty"`

	GCKeepCycles          uint32 `json:"gc_keep_cycles"`           // BlockStore.PurgeBefore window
	RewardCycleArgEnabled bool   `json:"reward_cycle_arg_enabled"` // enables the on-chain reward-cycle consistency check

	TxFeeMicroUnits uint64 `json:"tx_fee_micro_units"` // pre-Nakamoto vote-tx mempool fee

	EventTimeout time.Duration `json:"event_timeout"` // coordinator rotation timeout: time without recorded progress before the next candidate is selected

	// KeyIDs lists the key shares this signer holds within the cycle's key
	// set. Like the round timeouts below, it is a pass-through consumed by
	// a production frost.Factory; refsig derives its own single share.
	KeyIDs []uint32 `json:"key_ids,omitempty"`

	// Round-internal timeouts, passed through unused by this engine: a
	// production build forwards these to the registered frost.Factory when
	// it constructs its Coordinator, which owns DKG/signing round-internal
	// timeout enforcement as an external collaborator. refsig, the
	// reference plugin compiled in here, does not consume them.
	DkgPublicTimeout  time.Duration `json:"dkg_public_timeout"`
	DkgPrivateTimeout time.Duration `json:"dkg_private_timeout"`
	DkgEndTimeout     time.Duration `json:"dkg_end_timeout"`
	NonceTimeout      time.Duration `json:"nonce_timeout"`
	SignTimeout       time.Duration `json:"sign_timeout"`
}

// KeystorePasswordEnvVar is the only accepted source for the keystore
// decryption password. It is never read from a CLI flag: flags are visible
// to any local user via ps(1).
const KeystorePasswordEnvVar = "SIGNER_KEYSTORE_PASSWORD"

// DefaultConfig returns a single-signer development configuration.
func DefaultConfig() *SignerConfig {
	return &SignerConfig{
		DataDir:             "./data",
		KeystorePath:        "./signer.keystore.json",
		StaleNodeNackPolicy: DefaultStaleNodeNackPolicy(),
		GCKeepCycles:        2,
		EventTimeout:        30 * time.Second,
	}
}

// Load reads a JSON config file from path, applies defaults for any zero
// fields, and validates the result.
func Load(path string) (*SignerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *SignerConfig) Validate() error {
	if c.SignerID == "" {
		return fmt.Errorf("signer_id must not be empty")
	}
	if _, err := crypto.PubKeyFromHex(c.SignerID); err != nil {
		return fmt.Errorf("signer_id: %w", err)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.KeystorePath == "" {
		return fmt.Errorf("keystore_path must not be empty")
	}
	if len(c.RegisteredSigners) == 0 {
		return fmt.Errorf("registered_signers list must not be empty")
	}
	found := false
	for i, v := range c.RegisteredSigners {
		if _, err := crypto.PubKeyFromHex(v); err != nil {
			return fmt.Errorf("registered_signers[%d]: %w", i, err)
		}
		if v == c.SignerID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("signer_id %q is not a member of registered_signers", c.SignerID)
	}
	if c.ChainRPCEndpoint == "" {
		return fmt.Errorf("chain_rpc_endpoint must not be empty")
	}
	if c.BulletinEndpoint == "" {
		return fmt.Errorf("bulletin_endpoint must not be empty")
	}
	if p := c.StaleNodeNackPolicy; p != nil && p.NackThresholdPercent > 100 {
		return fmt.Errorf("stale_node_nack_policy.nack_threshold_percent must be <= 100, got %d", p.NackThresholdPercent)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// NumSigners returns the size of the registered signer set.
func (c *SignerConfig) NumSigners() int {
	return len(c.RegisteredSigners)
}

// Threshold returns the signing threshold floor(num_keys*7/10), per the
// reward-cycle signer-set sizing rule.
func (c *SignerConfig) Threshold() int {
	return c.NumSigners() * 7 / 10
}

// DKGThreshold returns the DKG-completion threshold floor(num_keys*9/10).
func (c *SignerConfig) DKGThreshold() int {
	return c.NumSigners() * 9 / 10
}

// Save writes the config to path as formatted JSON.
func Save(cfg *SignerConfig, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
