// Package fileref decodes Telegram Bot API file identifiers and derives the
// catalog identity for a media item from them.
//
// A file_id embeds the media's immutable identity (type, data center, media
// id, access hash) together with a refreshable file reference. The content
// key is built only from the immutable part, so re-announcing the same media
// with a new reference yields the same key.
package fileref

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode is returned when a file_id cannot be decoded into a document
// reference. Callers treat the item as unsupported.
var ErrDecode = errors.New("fileref: cannot decode file id")

// Type is the media type discriminant stored in a file_id.
type Type int32

const (
	TypeThumbnail          Type = 0
	TypeChatPhoto          Type = 1
	TypePhoto              Type = 2
	TypeVoice              Type = 3
	TypeVideo              Type = 4
	TypeDocument           Type = 5
	TypeEncrypted          Type = 6
	TypeTemp               Type = 7
	TypeSticker            Type = 8
	TypeAudio              Type = 9
	TypeAnimation          Type = 10
	TypeEncryptedThumbnail Type = 11
	TypeWallpaper          Type = 12
	TypeVideoNote          Type = 13
	TypeSecureRaw          Type = 14
	TypeSecure             Type = 15
	TypeBackground         Type = 16
	TypeDocumentAsFile     Type = 17
)

const (
	webLocationFlag   = 1 << 24
	fileReferenceFlag = 1 << 25

	// Appended to the packed identity before escaping. Fixed so that keys
	// stay stable across releases.
	sentinelA = 22
	sentinelB = 4
)

// isPhotoType reports whether t is encoded with a photo location layout,
// which carries no media id and is never catalogued.
func isPhotoType(t Type) bool {
	switch t {
	case TypeThumbnail, TypeChatPhoto, TypePhoto, TypeWallpaper, TypeEncryptedThumbnail:
		return true
	}
	return false
}

// Reference is the decoded form of a document-family file_id.
type Reference struct {
	Type          Type
	DCID          int32
	MediaID       int64
	AccessHash    int64
	FileReference []byte

	Major int
	Minor int
}

// Decode parses a Bot API file_id.
func Decode(fileID string) (Reference, error) {
	if fileID == "" {
		return Reference{}, fmt.Errorf("%w: empty", ErrDecode)
	}
	raw, err := base64.RawURLEncoding.DecodeString(trimPadding(fileID))
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	data := expandZeroRuns(raw)
	if len(data) < 1 {
		return Reference{}, fmt.Errorf("%w: too short", ErrDecode)
	}

	var ref Reference
	ref.Major = int(data[len(data)-1])
	data = data[:len(data)-1]
	if ref.Major >= 4 {
		if len(data) < 1 {
			return Reference{}, fmt.Errorf("%w: missing sub-version", ErrDecode)
		}
		ref.Minor = int(data[len(data)-1])
		data = data[:len(data)-1]
	}

	r := reader{buf: data}
	rawType, ok := r.int32()
	if !ok {
		return Reference{}, fmt.Errorf("%w: truncated header", ErrDecode)
	}
	if ref.DCID, ok = r.int32(); !ok {
		return Reference{}, fmt.Errorf("%w: truncated header", ErrDecode)
	}

	if rawType&webLocationFlag != 0 {
		return Reference{}, fmt.Errorf("%w: web location", ErrDecode)
	}
	hasReference := rawType&fileReferenceFlag != 0
	ref.Type = Type(rawType &^ (webLocationFlag | fileReferenceFlag))
	if ref.Type < TypeThumbnail || ref.Type > TypeDocumentAsFile {
		return Reference{}, fmt.Errorf("%w: unknown type %d", ErrDecode, ref.Type)
	}
	if isPhotoType(ref.Type) {
		return Reference{}, fmt.Errorf("%w: photo type %d", ErrDecode, ref.Type)
	}

	if hasReference {
		if ref.FileReference, ok = r.tlBytes(); !ok {
			return Reference{}, fmt.Errorf("%w: truncated file reference", ErrDecode)
		}
	}
	if ref.MediaID, ok = r.int64(); !ok {
		return Reference{}, fmt.Errorf("%w: truncated media id", ErrDecode)
	}
	if ref.AccessHash, ok = r.int64(); !ok {
		return Reference{}, fmt.Errorf("%w: truncated access hash", ErrDecode)
	}
	return ref, nil
}

// EncodeKey returns the stable catalog key for ref.
func EncodeKey(ref Reference) string {
	packed := make([]byte, 24)
	binary.LittleEndian.PutUint32(packed[0:], uint32(ref.Type))
	binary.LittleEndian.PutUint32(packed[4:], uint32(ref.DCID))
	binary.LittleEndian.PutUint64(packed[8:], uint64(ref.MediaID))
	binary.LittleEndian.PutUint64(packed[16:], uint64(ref.AccessHash))
	return EncodePacked(packed)
}

// EncodePacked applies the key transform to an already packed identity:
// sentinel bytes are appended, zero runs are escaped as (0x00, length) and
// the result is URL-safe base64 without padding.
func EncodePacked(packed []byte) string {
	buf := make([]byte, 0, len(packed)+2)
	buf = append(buf, packed...)
	buf = append(buf, sentinelA, sentinelB)
	return base64.RawURLEncoding.EncodeToString(escapeZeroRuns(buf))
}

// EncodeToken returns the access token for ref: its file reference in
// URL-safe base64 without padding.
func EncodeToken(ref Reference) string {
	return base64.RawURLEncoding.EncodeToString(ref.FileReference)
}

// Unpack decodes fileID and returns its content key and access token.
func Unpack(fileID string) (key, token string, err error) {
	ref, err := Decode(fileID)
	if err != nil {
		return "", "", err
	}
	return EncodeKey(ref), EncodeToken(ref), nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

// escapeZeroRuns replaces each maximal run of zero bytes with the pair
// (0x00, run length). Runs longer than 255 are split.
func escapeZeroRuns(b []byte) []byte {
	out := make([]byte, 0, len(b))
	run := 0
	flush := func() {
		for run > 0 {
			n := run
			if n > 255 {
				n = 255
			}
			out = append(out, 0, byte(n))
			run -= n
		}
	}
	for _, c := range b {
		if c == 0 {
			run++
			continue
		}
		flush()
		out = append(out, c)
	}
	flush()
	return out
}

// expandZeroRuns is the inverse of escapeZeroRuns.
func expandZeroRuns(b []byte) []byte {
	out := make([]byte, 0, len(b)*2)
	escaped := false
	for _, c := range b {
		if escaped {
			for i := 0; i < int(c); i++ {
				out = append(out, 0)
			}
			escaped = false
			continue
		}
		if c == 0 {
			escaped = true
			continue
		}
		out = append(out, c)
	}
	return out
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int) ([]byte, bool) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *reader) int32() (int32, bool) {
	b, ok := r.take(4)
	if !ok {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(b)), true
}

func (r *reader) int64() (int64, bool) {
	b, ok := r.take(8)
	if !ok {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(b)), true
}

// tlBytes reads a TL-serialized byte string: a one byte length (or 254
// followed by a three byte length), the payload, then padding to a
// multiple of four.
func (r *reader) tlBytes() ([]byte, bool) {
	hdr, ok := r.take(1)
	if !ok {
		return nil, false
	}
	length := int(hdr[0])
	prefix := 1
	if length == 254 {
		ext, ok := r.take(3)
		if !ok {
			return nil, false
		}
		length = int(ext[0]) | int(ext[1])<<8 | int(ext[2])<<16
		prefix = 4
	} else if length == 255 {
		return nil, false
	}
	payload, ok := r.take(length)
	if !ok {
		return nil, false
	}
	if pad := (4 - (prefix+length)%4) % 4; pad > 0 {
		if _, ok := r.take(pad); !ok {
			return nil, false
		}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, true
}
