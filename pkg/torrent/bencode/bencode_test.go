package bencode_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/NamanBalaji/btcore/pkg/torrent/bencode"
)

func TestDecodeLiterals(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bencode.Value
	}{
		{"string", "5:hello", bencode.Str("hello")},
		{"empty string", "0:", bencode.Str("")},
		{"integer", "i52e", bencode.Int(52)},
		{"zero", "i0e", bencode.Int(0)},
		{"negative", "i-42e", bencode.Int(-42)},
		{"list", "l5:helloi52ee", bencode.List{bencode.Str("hello"), bencode.Int(52)}},
		{"empty list", "le", bencode.List{}},
		{"dict", "d3:bar4:spam3:fooi42ee", bencode.Dict{"bar": bencode.Str("spam"), "foo": bencode.Int(42)}},
		{"nested", "d4:infod6:lengthi71eee", bencode.Dict{"info": bencode.Dict{"length": bencode.Int(71)}}},
		{"binary string", "4:\x00\x01\xfe\xff", bencode.String{0x00, 0x01, 0xfe, 0xff}},
		{"binary dict key", "d2:\xff\x00i1ee", bencode.Dict{"\xff\x00": bencode.Int(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bencode.DecodeAll([]byte(tt.input))
			if err != nil {
				t.Fatalf("DecodeAll(%q) error = %v", tt.input, err)
			}

			if !bencode.Equal(got, tt.want) {
				t.Errorf("DecodeAll(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDecodeReportsConsumedBytes(t *testing.T) {
	v, n, err := bencode.Decode([]byte("i7eXYZ"))
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}

	if n != 3 {
		t.Errorf("consumed = %d, want 3", n)
	}

	if !bencode.Equal(v, bencode.Int(7)) {
		t.Errorf("value = %#v, want 7", v)
	}

	_, err = bencode.DecodeAll([]byte("i7eXYZ"))
	if !errors.Is(err, bencode.ErrTrailingData) {
		t.Errorf("DecodeAll error = %v, want ErrTrailingData", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty input", "", bencode.ErrUnexpectedEOF},
		{"unknown leading byte", "x", bencode.ErrInvalidBencode},
		{"string shorter than declared", "10:abc", bencode.ErrUnexpectedEOF},
		{"string length without colon", "5", bencode.ErrUnexpectedEOF},
		{"non-numeric length", "5a:hello", bencode.ErrInvalidBencode},
		{"huge length", "99999999999999999999:a", bencode.ErrInvalidBencode},
		{"unterminated integer", "i42", bencode.ErrUnexpectedEOF},
		{"empty integer", "ie", bencode.ErrInvalidBencode},
		{"leading zero", "i03e", bencode.ErrInvalidBencode},
		{"negative zero", "i-0e", bencode.ErrInvalidBencode},
		{"bare minus", "i-e", bencode.ErrInvalidBencode},
		{"letters in integer", "i4x2e", bencode.ErrInvalidBencode},
		{"integer overflow", "i9223372036854775808e", bencode.ErrInvalidBencode},
		{"unterminated list", "li1e", bencode.ErrUnexpectedEOF},
		{"unterminated dict", "d3:fooi1e", bencode.ErrUnexpectedEOF},
		{"dict missing value", "d3:fooe", bencode.ErrInvalidBencode},
		{"integer dict key", "di1ei2ee", bencode.ErrInvalidBencode},
		{"duplicate dict key", "d1:ai1e1:ai2ee", bencode.ErrInvalidBencode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bencode.DecodeAll([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeAll(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}

			var syntaxErr *bencode.SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Errorf("error %v is not a *SyntaxError", err)
			}
		})
	}
}

func TestDecodeDeepNestingFails(t *testing.T) {
	input := make([]byte, 0, 2000)
	for range 1000 {
		input = append(input, 'l')
	}
	for range 1000 {
		input = append(input, 'e')
	}

	if _, err := bencode.DecodeAll(input); !errors.Is(err, bencode.ErrInvalidBencode) {
		t.Errorf("error = %v, want ErrInvalidBencode", err)
	}
}

func TestEncodeCanonicalKeyOrder(t *testing.T) {
	a, err := bencode.Encode(bencode.Dict{"b": bencode.Int(1), "a": bencode.Int(2)})
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}

	b, err := bencode.Encode(bencode.Dict{"a": bencode.Int(2), "b": bencode.Int(1)})
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}

	if string(a) != string(b) {
		t.Errorf("encodings differ: %q vs %q", a, b)
	}

	if string(a) != "d1:ai2e1:bi1ee" {
		t.Errorf("Encode = %q, want %q", a, "d1:ai2e1:bi1ee")
	}
}

func TestEncodeSortsRawBytes(t *testing.T) {
	// Uppercase and high bytes sort by value, not by locale.
	d := bencode.Dict{"\xff": bencode.Int(3), "a": bencode.Int(2), "B": bencode.Int(1)}

	got, err := bencode.Encode(d)
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}

	want := "d1:Bi1e1:ai2e1:\xffi3ee"
	if string(got) != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestEncodeReordersDecodedDict(t *testing.T) {
	v, err := bencode.DecodeAll([]byte("d3:fooi42e3:bar4:spame"))
	if err != nil {
		t.Fatalf("DecodeAll error = %v", err)
	}

	got, err := bencode.Encode(v)
	if err != nil {
		t.Fatalf("Encode error = %v", err)
	}

	if string(got) != "d3:bar4:spam3:fooi42ee" {
		t.Errorf("Encode = %q", got)
	}
}

func TestEncodeNilValue(t *testing.T) {
	if _, err := bencode.Encode(bencode.List{nil}); !errors.Is(err, bencode.ErrInvalidType) {
		t.Errorf("error = %v, want ErrInvalidType", err)
	}
}

func randomValue(r *rand.Rand, depth int) bencode.Value {
	kind := r.Intn(4)
	if depth <= 0 {
		kind = r.Intn(2)
	}

	switch kind {
	case 0:
		b := make([]byte, r.Intn(12))
		r.Read(b)
		return bencode.String(b)
	case 1:
		return bencode.Int(r.Int63() - r.Int63())
	case 2:
		l := bencode.List{}
		for range r.Intn(5) {
			l = append(l, randomValue(r, depth-1))
		}
		return l
	default:
		d := bencode.Dict{}
		for range r.Intn(5) {
			k := make([]byte, 1+r.Intn(6))
			r.Read(k)
			d[string(k)] = randomValue(r, depth-1)
		}
		return d
	}
}

func TestRoundTripRandomTrees(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for i := range 500 {
		v := randomValue(r, 4)

		encoded, err := bencode.Encode(v)
		if err != nil {
			t.Fatalf("case %d: Encode error = %v", i, err)
		}

		decoded, err := bencode.DecodeAll(encoded)
		if err != nil {
			t.Fatalf("case %d: DecodeAll(%q) error = %v", i, encoded, err)
		}

		if !bencode.Equal(decoded, v) {
			t.Fatalf("case %d: round trip mismatch for %q", i, encoded)
		}

		again, err := bencode.Encode(decoded)
		if err != nil {
			t.Fatalf("case %d: re-Encode error = %v", i, err)
		}

		if string(again) != string(encoded) {
			t.Fatalf("case %d: encoding not stable: %q vs %q", i, encoded, again)
		}
	}
}

func TestNative(t *testing.T) {
	v := bencode.Dict{
		"list": bencode.List{bencode.Str("a"), bencode.Int(1)},
		"n":    bencode.Int(-3),
	}

	got, ok := bencode.Native(v).(map[string]any)
	if !ok {
		t.Fatalf("Native returned %T", bencode.Native(v))
	}

	if got["n"] != int64(-3) {
		t.Errorf("n = %v", got["n"])
	}

	list, ok := got["list"].([]any)
	if !ok || len(list) != 2 || list[0] != "a" || list[1] != int64(1) {
		t.Errorf("list = %#v", got["list"])
	}
}
