package tokenstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

const tokenRecordVersion1 = 1

type tokenRecord struct {
	Token   string
	SavedAt int64
}

func encodeRecord(token string, now time.Time) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("tokenstore: empty token")
	}
	if len(token) > math.MaxUint16 {
		return nil, fmt.Errorf("tokenstore: token too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(token) + 8)
	buf.WriteByte(tokenRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(token))); err != nil {
		return nil, err
	}
	buf.WriteString(token)
	if err := binary.Write(&buf, binary.BigEndian, now.Unix()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*tokenRecord, error) {
	if len(data) == 0 {
		return nil, ErrCorrupt
	}
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != tokenRecordVersion1 {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorrupt, version)
	}

	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, ErrCorrupt
	}
	if n == 0 {
		return nil, ErrCorrupt
	}
	token := make([]byte, n)
	if _, err := io.ReadFull(r, token); err != nil {
		return nil, ErrCorrupt
	}

	rec := &tokenRecord{Token: string(token)}
	if err := binary.Read(r, binary.BigEndian, &rec.SavedAt); err != nil {
		return nil, ErrCorrupt
	}
	if r.Len() != 0 {
		return nil, ErrCorrupt
	}
	return rec, nil
}
