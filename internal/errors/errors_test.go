package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesRetryable(t *testing.T) {
	cases := []struct {
		kind      Kind
		retryable bool
	}{
		{NotFound, false},
		{InvalidArgument, false},
		{Upstream, true},
		{Timeout, true},
		{Internal, false},
	}
	for _, tc := range cases {
		err := New(tc.kind, "lexical", "boom", nil)
		assert.Equal(t, tc.retryable, err.Retryable, tc.kind)
	}
}

func TestErrorMessageIncludesComponent(t *testing.T) {
	err := New(Upstream, "inference", "timed out", nil)
	assert.Contains(t, err.Error(), "inference")
	assert.Contains(t, err.Error(), "upstream")
}

func TestUnwrapAndIs(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := UpstreamWrap("vectorstore", cause)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, cause))

	other := New(Upstream, "lexical", "different", nil)
	assert.True(t, stderrors.Is(err, other), "Is compares by Kind")

	nf := NotFoundf("tracker", "store %q not found", "docs")
	assert.False(t, stderrors.Is(err, nf))
}

func TestWithDetail(t *testing.T) {
	err := InvalidArgumentf("chunk", "dimension must be positive")
	err.WithDetail("dimension", "-1")
	assert.Equal(t, "-1", err.Details["dimension"])
}

func TestIsRetryableAndGetKind(t *testing.T) {
	err := TimeoutWrap("rerank", stderrors.New("context deadline exceeded"))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, Timeout, GetKind(err))

	assert.False(t, IsRetryable(stderrors.New("plain error")))
	assert.Equal(t, Kind(""), GetKind(nil))
}
