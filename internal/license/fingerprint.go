package license

import (
	"context"
	"errors"
	"fmt"

	"credguard/internal/config"
	apperrors "credguard/internal/errors"
	"credguard/internal/security"
)

// Binary similarity values
const (
	SimilarityIdentical = 1.0
	SimilarityDifferent = 0.3
)

// FingerprintSample is a fingerprint hash with the features it was computed from
type FingerprintSample struct {
	Hash     string
	Features []string
}

// Similarity scores how alike two fingerprints are, from 0 to 1
type Similarity interface {
	Compare(stored, current FingerprintSample) float64
	Name() string
}

// ExactSimilarity is 1.0 for identical hashes and 0.3 otherwise
type ExactSimilarity struct{}

// Compare implements Similarity
func (ExactSimilarity) Compare(stored, current FingerprintSample) float64 {
	if stored.Hash == current.Hash {
		return SimilarityIdentical
	}
	return SimilarityDifferent
}

// Name implements Similarity
func (ExactSimilarity) Name() string { return config.SimilarityExact }

// JaccardSimilarity is the Jaccard index of the two feature sets. Without stored
// features it falls back to ExactSimilarity.
type JaccardSimilarity struct{}

// Compare implements Similarity
func (JaccardSimilarity) Compare(stored, current FingerprintSample) float64 {
	if stored.Hash == current.Hash {
		return SimilarityIdentical
	}
	if len(stored.Features) == 0 || len(current.Features) == 0 {
		return ExactSimilarity{}.Compare(stored, current)
	}

	a := make(map[string]struct{}, len(stored.Features))
	for _, f := range stored.Features {
		a[f] = struct{}{}
	}
	union := len(a)
	inter := 0
	seen := make(map[string]struct{}, len(current.Features))
	for _, f := range current.Features {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if _, ok := a[f]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return SimilarityIdentical
	}
	return float64(inter) / float64(union)
}

// Name implements Similarity
func (JaccardSimilarity) Name() string { return config.SimilarityJaccard }

// SimilarityByName maps a config value to a Similarity
func SimilarityByName(name string) (Similarity, error) {
	switch name {
	case "", config.SimilarityExact:
		return ExactSimilarity{}, nil
	case config.SimilarityJaccard:
		return JaccardSimilarity{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint similarity %q", name)
	}
}

// DeviceFingerprintValidator compares a device fingerprint to the one stored for an identity
type DeviceFingerprintValidator struct {
	store         ProfileStore
	similarity    Similarity
	minSimilarity float64
	collect       func() security.DeviceAttributes
}

// NewDeviceFingerprintValidator creates a validator. collect supplies attributes when a
// request carries none; nil disables that fallback.
func NewDeviceFingerprintValidator(store ProfileStore, similarity Similarity, minSimilarity float64, collect func() security.DeviceAttributes) *DeviceFingerprintValidator {
	if similarity == nil {
		similarity = ExactSimilarity{}
	}
	return &DeviceFingerprintValidator{
		store:         store,
		similarity:    similarity,
		minSimilarity: minSimilarity,
		collect:       collect,
	}
}

// Check hashes attrs and compares against the stored fingerprint, storing it on first sight
func (v *DeviceFingerprintValidator) Check(ctx context.Context, identityID string, attrs *security.DeviceAttributes) CheckResult {
	if attrs == nil {
		if v.collect == nil {
			return failedResult(MethodFingerprint,
				apperrors.NewCheckExecutionError(string(MethodFingerprint), errors.New("no device attributes supplied")))
		}
		host := v.collect()
		attrs = &host
	}

	current := FingerprintSample{Hash: attrs.Hash(), Features: attrs.Features()}
	details := map[string]any{
		"hash":     shortHash(current.Hash),
		"strategy": v.similarity.Name(),
	}

	var stored *FingerprintSample
	profile, err := v.store.Get(ctx, identityID)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
	case err != nil:
		return failedResult(MethodFingerprint, apperrors.NewCheckExecutionError(string(MethodFingerprint), err))
	case profile.DeviceFingerprintHash != "":
		stored = &FingerprintSample{Hash: profile.DeviceFingerprintHash, Features: profile.DeviceFeatures}
	}

	if stored == nil {
		firstTime := false
		_, err := v.store.Update(ctx, identityID, func(p *IdentityProfile) error {
			if p.DeviceFingerprintHash == "" {
				p.DeviceFingerprintHash = current.Hash
				p.DeviceFeatures = current.Features
				firstTime = true
				return nil
			}
			stored = &FingerprintSample{Hash: p.DeviceFingerprintHash, Features: append([]string(nil), p.DeviceFeatures...)}
			return nil
		})
		if err != nil {
			return failedResult(MethodFingerprint, apperrors.NewCheckExecutionError(string(MethodFingerprint), err))
		}
		if firstTime {
			details["firstTime"] = true
			details["similarity"] = SimilarityIdentical
			return CheckResult{Method: MethodFingerprint, Passed: true, Details: details}
		}
	}

	similarity := v.similarity.Compare(*stored, current)
	details["similarity"] = similarity
	details["matches"] = stored.Hash == current.Hash

	return CheckResult{
		Method:  MethodFingerprint,
		Passed:  similarity >= v.minSimilarity,
		Details: details,
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
