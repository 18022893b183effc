package telemetry

import (
	"math"
	"unicode/utf8"

	"codeberg.org/mutker/thermonode/internal/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the telemetry message.
const (
	fieldPublisherID protowire.Number = 1
	fieldTemperature protowire.Number = 2
	fieldCurrentTime protowire.Number = 3
)

// Encode serializes r in protobuf wire format. All three fields are always
// written, in field order, so the output is deterministic.
func Encode(r Record) []byte {
	b := make([]byte, 0, encodedSize(r))

	b = protowire.AppendTag(b, fieldPublisherID, protowire.BytesType)
	b = protowire.AppendString(b, r.PublisherID)

	b = protowire.AppendTag(b, fieldTemperature, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.Temperature))

	b = protowire.AppendTag(b, fieldCurrentTime, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Timestamp))

	return b
}

func encodedSize(r Record) int {
	return protowire.SizeTag(fieldPublisherID) + protowire.SizeBytes(len(r.PublisherID)) +
		protowire.SizeTag(fieldTemperature) + protowire.SizeFixed64() +
		protowire.SizeTag(fieldCurrentTime) + protowire.SizeVarint(uint64(r.Timestamp))
}

// Decode parses a telemetry message. Unknown fields are skipped. It returns
// either a complete record or an error coded ErrMalformed or
// ErrMissingField, never a partial record.
func Decode(b []byte) (Record, error) {
	errFactory := errors.New()

	var (
		rec                          Record
		hasID, hasTemp, hasTimestamp bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, errFactory.Wrap(ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldPublisherID:
			if typ != protowire.BytesType {
				return Record{}, wireTypeError(num, typ)
			}
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Record{}, errFactory.Wrap(ErrMalformed, protowire.ParseError(n))
			}
			if !utf8.ValidString(v) {
				return Record{}, errFactory.WithData(ErrMalformed, "publisher_id is not valid UTF-8")
			}
			rec.PublisherID = v
			hasID = true
			b = b[n:]

		case fieldTemperature:
			if typ != protowire.Fixed64Type {
				return Record{}, wireTypeError(num, typ)
			}
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return Record{}, errFactory.Wrap(ErrMalformed, protowire.ParseError(n))
			}
			rec.Temperature = math.Float64frombits(v)
			hasTemp = true
			b = b[n:]

		case fieldCurrentTime:
			if typ != protowire.VarintType {
				return Record{}, wireTypeError(num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Record{}, errFactory.Wrap(ErrMalformed, protowire.ParseError(n))
			}
			rec.Timestamp = int64(v)
			hasTimestamp = true
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, errFactory.Wrap(ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch {
	case !hasID || rec.PublisherID == "":
		return Record{}, errFactory.WithData(ErrMissingField, "publisher_id")
	case !hasTemp:
		return Record{}, errFactory.WithData(ErrMissingField, "temperature")
	case !hasTimestamp:
		return Record{}, errFactory.WithData(ErrMissingField, "current_time")
	}

	return rec, nil
}

func wireTypeError(num protowire.Number, typ protowire.Type) error {
	return errors.New().WithData(ErrMalformed, struct {
		Field    int32
		WireType int8
	}{
		Field:    int32(num),
		WireType: int8(typ),
	})
}
