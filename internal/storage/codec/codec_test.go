package codec

import (
	"os"
	"testing"

	"gotest.tools/v3/assert"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample{Name: "widgets", Count: 7}
	payload, err := Encode(in)
	assert.NilError(t, err)

	var out sample
	assert.NilError(t, Decode(payload, &out))
	assert.DeepEqual(t, in, out)
}

func TestEncodeSlotRejectsOversizedPayload(t *testing.T) {
	big := sample{Name: string(make([]byte, 1000)), Count: 1}
	_, err := EncodeSlot(big, MetaBufferSize)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestWriteSlotThenReadSlotRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "slot")
	assert.NilError(t, err)
	defer f.Close()

	in := sample{Name: "gadgets", Count: 42}
	assert.NilError(t, WriteSlot(f, 0, in, MetaBufferSize))

	var out sample
	assert.NilError(t, ReadSlot(f, 0, &out))
	assert.DeepEqual(t, in, out)
}

func TestWriteSlotZeroFillsPreviousContent(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "slot")
	assert.NilError(t, err)
	defer f.Close()

	long := sample{Name: "a long name that takes up more space", Count: 1}
	assert.NilError(t, WriteSlot(f, 0, long, MetaBufferSize))

	short := sample{Name: "x", Count: 2}
	assert.NilError(t, WriteSlot(f, 0, short, MetaBufferSize))

	var out sample
	assert.NilError(t, ReadSlot(f, 0, &out))
	assert.DeepEqual(t, short, out)
}

func TestPutGetBigUintRoundTrip(t *testing.T) {
	buf := make([]byte, LengthFieldSize)
	putBigUint(buf, 123456789)
	assert.Equal(t, getBigUint(buf), uint64(123456789))
}
