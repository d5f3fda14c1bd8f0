package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "lower", in: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", want: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{name: "mixed with spaces", in: "  0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed ", want: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"},
		{name: "missing prefix", in: "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed00", wantErr: true},
		{name: "too short", in: "0x1234", wantErr: true},
		{name: "non hex", in: "0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChecksumEIP55Vectors(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		got, err := Checksum(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("0xABCdef0000000000000000000000000000000000", "0xabcdef0000000000000000000000000000000000"))
	assert.False(t, Equal("0x1", "0x2"))
}

func TestIsTxHash(t *testing.T) {
	assert.True(t, IsTxHash("0x"+"ab"+"0000000000000000000000000000000000000000000000000000000000cd"))
	assert.False(t, IsTxHash("0x1234"))
	assert.False(t, IsTxHash("0x"+"zz00000000000000000000000000000000000000000000000000000000000000"))
}
