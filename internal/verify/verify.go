package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/resolver"
)

// Policy controls which artifacts may be instantiated.
type Policy struct {
	// AllowUnverified admits artifacts that satisfied no positive check.
	AllowUnverified bool `yaml:"allow_unverified" toml:"allow_unverified"`
	// RequiredDigests pins a digest per component locator.
	RequiredDigests map[string]digest.Digest `yaml:"required_digests" toml:"required_digests"`
	// AllowedDigests is a global digest allow-list.
	AllowedDigests []digest.Digest `yaml:"allowed_digests" toml:"allowed_digests"`
	// RequireSigned rejects artifacts without a trusted signature.
	RequireSigned bool `yaml:"require_signed" toml:"require_signed"`
	// TrustedSigners holds ed25519 public keys, hex or base64 encoded.
	TrustedSigners []string `yaml:"trusted_signers" toml:"trusted_signers"`
}

// DevPolicy is the permissive development default.
func DevPolicy() Policy {
	return Policy{AllowUnverified: true}
}

// Validate checks that digests and signer keys are well formed.
func (p Policy) Validate() error {
	for locator, d := range p.RequiredDigests {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("required digest for %s: %w", locator, err)
		}
	}
	for _, d := range p.AllowedDigests {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("allowed digest %q: %w", d, err)
		}
	}
	if _, err := p.signerKeys(); err != nil {
		return err
	}
	if p.RequireSigned && len(p.TrustedSigners) == 0 {
		return fmt.Errorf("require_signed is set but no trusted signers are configured")
	}
	return nil
}

// Verify checks art against policy. Checks run in order: pinned digest,
// allow-list, signature. Any configured check that fails rejects.
func Verify(art *resolver.Artifact, policy Policy) error {
	locator := art.Provenance.Locator
	verified := false

	if want, ok := policy.RequiredDigests[locator]; ok {
		if want != art.Digest {
			return mcperr.VerificationFailed(locator, fmt.Sprintf("digest mismatch: want %s, got %s", want, art.Digest))
		}
		verified = true
	}

	if len(policy.AllowedDigests) > 0 {
		if !slices.Contains(policy.AllowedDigests, art.Digest) {
			return mcperr.VerificationFailed(locator, fmt.Sprintf("digest %s is not in the allow-list", art.Digest))
		}
		verified = true
	}

	if policy.RequireSigned || len(art.Signature) > 0 {
		if len(art.Signature) == 0 {
			return mcperr.VerificationFailed(locator, "signature required but none found")
		}
		keys, err := policy.signerKeys()
		if err != nil {
			return mcperr.VerificationFailed(locator, err.Error())
		}
		if len(keys) == 0 {
			if policy.RequireSigned {
				return mcperr.VerificationFailed(locator, "no trusted signers configured")
			}
		} else {
			sig, err := decodeSignature(art.Signature)
			if err != nil {
				return mcperr.VerificationFailed(locator, err.Error())
			}
			if !signedByAny(keys, art.Digest, sig) {
				return mcperr.VerificationFailed(locator, "signature does not match any trusted signer")
			}
			verified = true
		}
	}

	if !verified && !policy.AllowUnverified {
		return mcperr.VerificationFailed(locator, "artifact is unverified and the policy disallows unverified artifacts")
	}
	return nil
}

// Sign produces a detached base64 signature over d. Used by tooling and tests.
func Sign(key ed25519.PrivateKey, d digest.Digest) []byte {
	sig := ed25519.Sign(key, []byte(d.String()))
	return []byte(base64.StdEncoding.EncodeToString(sig))
}

func signedByAny(keys []ed25519.PublicKey, d digest.Digest, sig []byte) bool {
	msg := []byte(d.String())
	for _, key := range keys {
		if ed25519.Verify(key, msg, sig) {
			return true
		}
	}
	return false
}

func (p Policy) signerKeys() ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(p.TrustedSigners))
	for _, raw := range p.TrustedSigners {
		decoded, err := decodeKey(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, decoded)
	}
	return keys, nil
}

func decodeKey(raw string) (ed25519.PublicKey, error) {
	value := strings.TrimSpace(raw)
	if b, err := hex.DecodeString(value); err == nil && len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	return nil, fmt.Errorf("trusted signer %q is not a hex or base64 ed25519 public key", raw)
}

func decodeSignature(raw []byte) ([]byte, error) {
	if len(raw) == ed25519.SignatureSize {
		return raw, nil
	}
	value := strings.TrimSpace(string(raw))
	if b, err := base64.StdEncoding.DecodeString(value); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	if b, err := hex.DecodeString(value); err == nil && len(b) == ed25519.SignatureSize {
		return b, nil
	}
	return nil, fmt.Errorf("signature is not a raw, base64 or hex ed25519 signature")
}
