package cache

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// envelope is what a Layer writes to its Store: the msgpack encoded value
// and the instant it stops being served.
type envelope struct {
	ExpiresAt int64  `msgpack:"e"`
	Payload   []byte `msgpack:"p"`
}

func (e envelope) expired(now time.Time) bool {
	return now.UnixNano() >= e.ExpiresAt
}

// encode serializes v with msgpack, naming struct fields after their json
// tags so cached payloads look like API responses.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode fills dst from data. Integers held in interfaces decode as int64
// and floats as float64 whatever their encoded width.
func decode(data []byte, dst any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(dst)
}

func encodeEnvelope(payload []byte, expiresAt time.Time) ([]byte, error) {
	return msgpack.Marshal(envelope{ExpiresAt: expiresAt.UnixNano(), Payload: payload})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("cache: corrupt entry: %w", err)
	}
	return env, nil
}
