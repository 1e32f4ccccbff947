package fileref

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildFileID assembles a major-version-4 file_id from its fields.
func buildFileID(t Type, dc int32, mediaID, accessHash int64, fileRef []byte) string {
	var buf bytes.Buffer
	raw := uint32(t)
	if fileRef != nil {
		raw |= fileReferenceFlag
	}
	_ = binary.Write(&buf, binary.LittleEndian, raw)
	_ = binary.Write(&buf, binary.LittleEndian, dc)
	if fileRef != nil {
		n := len(fileRef)
		prefix := 1
		if n <= 253 {
			buf.WriteByte(byte(n))
		} else {
			buf.Write([]byte{254, byte(n), byte(n >> 8), byte(n >> 16)})
			prefix = 4
		}
		buf.Write(fileRef)
		buf.Write(make([]byte, (4-(prefix+n)%4)%4))
	}
	_ = binary.Write(&buf, binary.LittleEndian, mediaID)
	_ = binary.Write(&buf, binary.LittleEndian, accessHash)
	buf.Write([]byte{30, 4})
	return base64.RawURLEncoding.EncodeToString(escapeZeroRuns(buf.Bytes()))
}

func TestEncodePacked_ZeroRunScenario(t *testing.T) {
	packed := []byte{2, 0, 0, 5, 7, 0, 0, 0, 9}
	got := EncodePacked(packed)
	if want := "AgACBQcAAwkWBA"; got != want {
		t.Errorf("EncodePacked = %q, want %q", got, want)
	}
	if again := EncodePacked(packed); again != got {
		t.Errorf("EncodePacked not deterministic: %q then %q", got, again)
	}

	raw, err := base64.RawURLEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{2, 0, 2, 5, 7, 0, 3, 9, 22, 4}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("escaped bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodePacked_DoesNotMutateInput(t *testing.T) {
	packed := make([]byte, 9, 32)
	packed[0] = 1
	EncodePacked(packed)
	if packed[:cap(packed)][9] != 0 {
		t.Error("EncodePacked wrote into the caller's backing array")
	}
}

func TestUnpack_KnownFileIDs(t *testing.T) {
	tests := []struct {
		name      string
		fileID    string
		wantKey   string
		wantToken string
	}{
		{
			name:      "video with reference",
			fileID:    "BAACAgIAAw0BAAMqZcoRCcgDLDcAAnsAAYeAHFLoUHm03I77MsTCHgQ",
			wantKey:   "BAADAgADewABh4AcUuhQebTcjvsyxMIWBA",
			wantToken: "AQAAACplyhEJyAMsNw",
		},
		{
			name:      "document without reference",
			fileID:    "BQADBAADywT7cR8BAAKxaN46AAQeBA",
			wantKey:   "BQADBAADywT7cR8BAAKxaN46AAQWBA",
			wantToken: "",
		},
		{
			name:      "audio with negative access hash",
			fileID:    "CQACAgEAAwL__gABTQAH__________8eBA",
			wantKey:   "CQADAQADTQAH__________8WBA",
			wantToken: "__4",
		},
		{
			name:      "major version 3 has no sub-version byte",
			fileID:    "BQACAgIAAwJ4eQABYwAHZAAHAw",
			wantKey:   "BQADAgADYwAHZAAHFgQ",
			wantToken: "eHk",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, token, err := Unpack(tt.fileID)
			if err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if token != tt.wantToken {
				t.Errorf("token = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestDecode_Fields(t *testing.T) {
	fileRef := []byte{1, 0, 0, 0, 42, 101, 202, 17, 9, 200, 3, 44, 55}
	id := buildFileID(TypeVideo, 2, 5830000000000000123, -4412345678901234567, fileRef)

	ref, err := Decode(id)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := Reference{
		Type:          TypeVideo,
		DCID:          2,
		MediaID:       5830000000000000123,
		AccessHash:    -4412345678901234567,
		FileReference: fileRef,
		Major:         4,
		Minor:         30,
	}
	if diff := cmp.Diff(want, ref); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_LongFileReference(t *testing.T) {
	fileRef := make([]byte, 300)
	for i := range fileRef {
		fileRef[i] = byte(i%255 + 1)
	}
	id := buildFileID(TypeDocument, 2, 99, 100, fileRef)

	ref, err := Decode(id)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(ref.FileReference, fileRef) {
		t.Errorf("FileReference length %d, want %d", len(ref.FileReference), len(fileRef))
	}
	if got, want := EncodeToken(ref), base64.RawURLEncoding.EncodeToString(fileRef); got != want {
		t.Errorf("EncodeToken = %q, want %q", got, want)
	}
	if got, want := EncodeKey(ref), "BQADAgADYwAHZAAHFgQ"; got != want {
		t.Errorf("EncodeKey = %q, want %q", got, want)
	}
}

func TestEncodeKey_IgnoresFileReference(t *testing.T) {
	a := buildFileID(TypeDocument, 4, 1234567890123, 987654321, []byte("first"))
	b := buildFileID(TypeDocument, 4, 1234567890123, 987654321, []byte("refreshed"))

	keyA, tokA, err := Unpack(a)
	if err != nil {
		t.Fatalf("Unpack a: %v", err)
	}
	keyB, tokB, err := Unpack(b)
	if err != nil {
		t.Fatalf("Unpack b: %v", err)
	}
	if keyA != keyB {
		t.Errorf("keys differ for the same media: %q vs %q", keyA, keyB)
	}
	if tokA == tokB {
		t.Errorf("tokens should differ, both %q", tokA)
	}
}

func TestDecode_PaddedInput(t *testing.T) {
	id := buildFileID(TypeAudio, 1, 77, -1, []byte{0xff, 0xfe})
	padded := id
	for len(padded)%4 != 0 {
		padded += "="
	}
	k1, _, err := Unpack(id)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	k2, _, err := Unpack(padded)
	if err != nil {
		t.Fatalf("Unpack padded: %v", err)
	}
	if k1 != k2 {
		t.Errorf("padding changed key: %q vs %q", k1, k2)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fileID string
	}{
		{"empty", ""},
		{"not base64", "!!!***"},
		{"photo", "AgACAgIAAwJhYgABAQAHAQAHHgQ"},
		{"web location", "BQACAQIAAx4E"},
		{"truncated", "BQADBAADywT7cR8BAAKxaN46AAQ"[:12]},
		{"unknown type", buildFileID(Type(99), 1, 1, 1, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.fileID)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode(%q) error = %v, want ErrDecode", tt.fileID, err)
			}
		})
	}
}

func TestEscapeZeroRuns_LongRun(t *testing.T) {
	in := append([]byte{1}, make([]byte, 300)...)
	in = append(in, 2)
	got := escapeZeroRuns(in)
	want := []byte{1, 0, 255, 0, 45, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("escapeZeroRuns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, expandZeroRuns(got)); diff != "" {
		t.Errorf("expandZeroRuns did not restore input (-want +got):\n%s", diff)
	}
}
