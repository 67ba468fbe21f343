package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/pkg/errors"
)

func TestSignature_Bytes(t *testing.T) {
	sig := Signature([]Color{{false, "C"}}, nil)
	assert.Equal(t, []byte{0x92, 0x91, 0x92, 0xc2, 0xa1, 'C', 0x90}, sig)

	sig = Signature(
		[]Color{{false, "H"}, {true, "C"}},
		[][2]int{{0, 1}, {1, 0}},
	)
	assert.Equal(t, []byte{
		0x92,
		0x92, 0x92, 0xc2, 0xa1, 'H', 0x92, 0xc3, 0xa1, 'C',
		0x92, 0x92, 0x00, 0x01, 0x92, 0x01, 0x00,
	}, sig)
}

func TestHashSignature(t *testing.T) {
	fp := HashSignature(Signature([]Color{{false, "C"}}, nil))
	assert.Equal(t, Fingerprint("8c3b0af5d5a1a2d36d1d951287e6037c"), fp)

	fp = HashSignature(Signature([]Color{{false, "H"}, {true, "C"}}, [][2]int{{0, 1}, {1, 0}}))
	assert.Equal(t, Fingerprint("37261be6d84ee311831bd3c0324589e3"), fp)
	assert.True(t, fp.Valid())
}

func TestParseFingerprint(t *testing.T) {
	fp, err := ParseFingerprint("37261be6d84ee311831bd3c0324589e3")
	require.NoError(t, err)
	assert.True(t, fp.Valid())

	for _, bad := range []string{"", "37261BE6D84EE311831BD3C0324589E3", "abc", "37261be6d84ee311831bd3c0324589e3ff"} {
		_, err := ParseFingerprint(bad)
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParam), bad)
	}
}
