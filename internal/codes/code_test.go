package codes

import (
	"strings"
	"testing"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	serials := []uint{1, 2, 15, 16, 17, 255, 1000, 99999, 1234567, 4000000000}
	for _, serial := range serials {
		code := Generate(serial)
		if len(code) != codeLength {
			t.Fatalf("serial %d: code length = %d, want %d", serial, len(code), codeLength)
		}
		parsed, err := Parse(code)
		if err != nil {
			t.Fatalf("serial %d: Parse(%q) error = %v", serial, code, err)
		}
		if parsed != serial {
			t.Fatalf("serial %d: parsed = %d", serial, parsed)
		}
	}
}

func TestGenerateUsesSafeAlphabet(t *testing.T) {
	for _, serial := range []uint{1, 500, 123456} {
		code := Generate(serial)
		for i := 0; i < len(code); i++ {
			if !strings.ContainsRune(alphabet, rune(code[i])) {
				t.Fatalf("code %q contains char %q outside alphabet", code, code[i])
			}
		}
	}
}

func TestParseAcceptsLowercase(t *testing.T) {
	code := Generate(8848)
	parsed, err := Parse(strings.ToLower(code))
	if err != nil {
		t.Fatalf("Parse lowercase error = %v", err)
	}
	if parsed != 8848 {
		t.Fatalf("parsed = %d, want 8848", parsed)
	}
}

func TestParseRejectsTampered(t *testing.T) {
	code := Generate(424242)
	for i := 0; i < len(code); i++ {
		for _, c := range alphabet {
			if byte(c) == code[i] {
				continue
			}
			tampered := code[:i] + string(c) + code[i+1:]
			if _, err := Parse(tampered); err == nil {
				// 单字符篡改必须被校验和或密钥下标拦截
				t.Fatalf("tampered code %q (pos %d) parsed without error", tampered, i)
			}
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"ABC",
		strings.Repeat("A", codeLength+1),
		"0" + Generate(7)[1:], // 字符表外的字符
		Generate(7)[:codeLength-1] + "0",
	}
	for _, code := range cases {
		if _, err := Parse(code); err == nil {
			t.Fatalf("Parse(%q) expected error", code)
		}
	}
}
