package license

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credguard/internal/security"
	"credguard/internal/shared/testutil"
)

func TestExactSimilarity(t *testing.T) {
	s := ExactSimilarity{}
	assert.Equal(t, 1.0, s.Compare(FingerprintSample{Hash: "a"}, FingerprintSample{Hash: "a"}))
	assert.Equal(t, 0.3, s.Compare(FingerprintSample{Hash: "a"}, FingerprintSample{Hash: "b"}))
}

func TestJaccardSimilarity(t *testing.T) {
	s := JaccardSimilarity{}

	stored := FingerprintSample{Hash: "a", Features: []string{"x", "y", "z", "w"}}
	current := FingerprintSample{Hash: "b", Features: []string{"x", "y", "z", "v"}}
	assert.InDelta(t, 3.0/5.0, s.Compare(stored, current), 1e-9)

	noFeatures := FingerprintSample{Hash: "c"}
	assert.Equal(t, SimilarityDifferent, s.Compare(noFeatures, current))
}

func TestSimilarityByName(t *testing.T) {
	s, err := SimilarityByName("jaccard")
	require.NoError(t, err)
	assert.Equal(t, "jaccard", s.Name())

	s, err = SimilarityByName("")
	require.NoError(t, err)
	assert.Equal(t, "exact", s.Name())

	_, err = SimilarityByName("cosine")
	assert.Error(t, err)
}

func TestDeviceFingerprintExact(t *testing.T) {
	store := NewMemoryProfileStore()
	v := NewDeviceFingerprintValidator(store, ExactSimilarity{}, 0.8, nil)
	ctx := context.Background()
	device := testutil.DeviceAttributes("workstation-1")

	first := v.Check(ctx, "user", device)
	assert.True(t, first.Passed)
	assert.Equal(t, true, first.Details["firstTime"])

	profile, err := store.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, device.Hash(), profile.DeviceFingerprintHash)

	same := v.Check(ctx, "user", testutil.DeviceAttributes("workstation-1"))
	assert.True(t, same.Passed)
	assert.Equal(t, 1.0, same.Details["similarity"])

	other := v.Check(ctx, "user", testutil.DeviceAttributes("laptop-7"))
	assert.False(t, other.Passed)
	assert.Equal(t, 0.3, other.Details["similarity"])
}

func TestDeviceFingerprintJaccard(t *testing.T) {
	store := NewMemoryProfileStore()
	v := NewDeviceFingerprintValidator(store, JaccardSimilarity{}, 0.8, nil)
	ctx := context.Background()

	require.True(t, v.Check(ctx, "user", testutil.DeviceAttributes("workstation-1")).Passed)

	extraNIC := testutil.DeviceAttributes("workstation-1")
	extraNIC.NetworkInterfaces = append(extraNIC.NetworkInterfaces, "wlan0/02:42:ac:11:00:09")
	result := v.Check(ctx, "user", extraNIC)
	assert.True(t, result.Passed, "one added interface keeps similarity at 8/9")

	renamed := testutil.DeviceAttributes("laptop-7")
	result = v.Check(ctx, "user", renamed)
	assert.False(t, result.Passed, "one changed attribute drops similarity to 7/9")
}

func TestDeviceFingerprintCollectorFallback(t *testing.T) {
	host := testutil.DeviceAttributes("host")
	v := NewDeviceFingerprintValidator(NewMemoryProfileStore(), ExactSimilarity{}, 0.8, func() security.DeviceAttributes {
		return *host
	})

	result := v.Check(context.Background(), "user", nil)
	assert.True(t, result.Passed)

	noCollector := NewDeviceFingerprintValidator(NewMemoryProfileStore(), ExactSimilarity{}, 0.8, nil)
	result = noCollector.Check(context.Background(), "user", nil)
	assert.False(t, result.Passed)
	assert.Contains(t, result.Error, "CHECK_EXECUTION")
}
