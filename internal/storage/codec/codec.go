// Package codec implements the on-disk record framing used by the cursor:
// a fixed-width big-endian length prefix followed by a JSON payload.
package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// LengthFieldSize is the width, in bytes, of the length prefix in front of
// every record. It is sized for a reserved slot, not for the magnitude of
// the value it carries: a record's payload will never approach 2^(8*8)-1
// bytes, but the field is always this wide regardless.
const LengthFieldSize = 64

// MetaBufferSize is the reserved slot size for table and row records.
const MetaBufferSize = 512

// DBPrefix is the fixed ASCII magic written at the start of every data file.
const DBPrefix = "key-values-database"

// ErrPayloadTooLarge is returned by EncodeSlot when the length prefix plus
// payload is not strictly smaller than bufferSize bytes; callers must relocate the
// record to a fresh slot at the file tail instead of writing in place.
var ErrPayloadTooLarge = fmt.Errorf("codec: encoded record exceeds reserved slot")

// Encode marshals v to its textual (JSON) payload form.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals a payload into the destination pointed to by v. The
// caller supplies the destination type; the payload is fully
// self-describing (field names included), so no other context is needed.
//
// Numbers decoded into an interface{}-shaped destination (row data maps)
// come back as json.Number rather than float64, so a column written as an
// int round-trips through its exact textual form instead of losing
// precision or switching to scientific notation.
func Decode(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	return dec.Decode(v)
}

// EncodeSlot builds the full on-disk representation of a record: the
// 64-byte big-endian length field followed by the payload. If bufferSize is
// non-zero, the combined length+payload must be smaller than it or
// ErrPayloadTooLarge is returned — the caller is expected to relocate.
func EncodeSlot(v any, bufferSize int) ([]byte, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	total := LengthFieldSize + len(payload)
	if bufferSize > 0 && total >= bufferSize {
		return nil, ErrPayloadTooLarge
	}

	lengthField := make([]byte, LengthFieldSize)
	putBigUint(lengthField, uint64(len(payload)))

	buf := make([]byte, total)
	copy(buf, lengthField)
	copy(buf[LengthFieldSize:], payload)
	return buf, nil
}

// WriteSlot writes v at offset, optionally zero-filling bufferSize bytes
// first (the "use_buffer" behavior from the Python original: every
// non-header record lives in a reserved slot, and writing a shorter
// replacement into a slot that previously held a longer one must not leave
// trailing garbage from the old payload).
func WriteSlot(w io.WriterAt, offset int64, v any, bufferSize int) error {
	if bufferSize > 0 {
		zeros := make([]byte, bufferSize)
		if _, err := w.WriteAt(zeros, offset); err != nil {
			return fmt.Errorf("codec: zero-fill slot: %w", err)
		}
	}
	slot, err := EncodeSlot(v, bufferSize)
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(slot, offset); err != nil {
		return fmt.Errorf("codec: write slot: %w", err)
	}
	return nil
}

// WriteSlotOverflow writes v at offset the same way WriteSlot does, except
// it never returns ErrPayloadTooLarge: zeroFill bytes are still zero-filled
// first (clearing whatever the slot previously held), but the encoded
// record itself is written uncapped, however long it is. Callers use this
// for the relocated half of a relocate-on-overflow: the record that didn't
// fit in its old slot must still be written somewhere, and a fresh append
// at the file tail has nothing after it to protect.
func WriteSlotOverflow(w io.WriterAt, offset int64, v any, zeroFill int) error {
	if zeroFill > 0 {
		zeros := make([]byte, zeroFill)
		if _, err := w.WriteAt(zeros, offset); err != nil {
			return fmt.Errorf("codec: zero-fill slot: %w", err)
		}
	}
	slot, err := EncodeSlot(v, 0)
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(slot, offset); err != nil {
		return fmt.Errorf("codec: write overflow slot: %w", err)
	}
	return nil
}

// ReadSlot reads the length-prefixed payload at offset and decodes it
// into v.
func ReadSlot(r io.ReaderAt, offset int64, v any) error {
	lengthField := make([]byte, LengthFieldSize)
	if _, err := r.ReadAt(lengthField, offset); err != nil {
		return fmt.Errorf("codec: read length field: %w", err)
	}
	length := getBigUint(lengthField)

	payload := make([]byte, length)
	if length > 0 {
		if _, err := r.ReadAt(payload, offset+LengthFieldSize); err != nil {
			return fmt.Errorf("codec: read payload: %w", err)
		}
	}
	if err := Decode(payload, v); err != nil {
		return fmt.Errorf("codec: decode payload: %w", err)
	}
	return nil
}

// putBigUint writes val as a big-endian unsigned integer right-aligned
// within buf (buf is wider than 8 bytes, so the value occupies only its
// trailing bytes; the rest stays zero).
func putBigUint(buf []byte, val uint64) {
	if len(buf) < 8 {
		panic("codec: length field buffer smaller than uint64")
	}
	binary.BigEndian.PutUint64(buf[len(buf)-8:], val)
}

func getBigUint(buf []byte) uint64 {
	if len(buf) < 8 {
		panic("codec: length field buffer smaller than uint64")
	}
	return binary.BigEndian.Uint64(buf[len(buf)-8:])
}
