package aio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"native", KindNative},
		{"libaio", KindNative},
		{"", KindNative},
		{"io_uring", KindUring},
		{"URING", KindUring},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseKind("spdk")
	assert.Error(t, err)
}

func TestFactoryFor(t *testing.T) {
	for _, kind := range []Kind{KindNative, KindUring} {
		f, err := FactoryFor(kind)
		require.NoError(t, err)
		assert.NotNil(t, f)
	}
	_, err := FactoryFor(Kind("bogus"))
	assert.Error(t, err)
}

func TestFactoriesRejectBadDepth(t *testing.T) {
	_, err := NativeFactory(-1)
	assert.Error(t, err)
	_, err = UringFactory(0)
	assert.Error(t, err)
}
