package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

// ErrCorrupt is returned by Decode for blobs it cannot read.
var ErrCorrupt = errors.New("session record corrupt")

func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(2 + len(s.UserID) + len(s.Email) + 16)

	buf.WriteByte(sessionFormatVersionCurrent)
	if err := writeShortString(&buf, s.UserID, "userID"); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, s.Email, "email"); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a record written by Encode. SessionID is not part of the
// blob; the caller fills it from the key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrCorrupt
	}

	s := &Session{}
	if s.UserID, err = readShortString(reader); err != nil {
		return nil, ErrCorrupt
	}
	if s.Email, err = readShortString(reader); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, ErrCorrupt
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, ErrCorrupt
	}
	if reader.Len() != 0 || s.UserID == "" {
		return nil, ErrCorrupt
	}
	return s, nil
}

func writeShortString(buf *bytes.Buffer, v, field string) error {
	if len(v) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
