package addr

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

func TestParseDetectsType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
		str  string
	}{
		{"12:34:56:ab:cd:ef", MAC, "12:34:56:ab:cd:ef"},
		{"FE:DC:BA:65:43:21", MAC, "fe:dc:ba:65:43:21"},
		{"192.0.2.29", IPv4, "192.0.2.29"},
		{"0.0.0.0", IPv4, "0.0.0.0"},
		{"2001:db8::43", IPv6, "2001:db8::43"},
		{"2001:DB8:0:0:0:0:0:43", IPv6, "2001:db8::43"},
		{"::1", IPv6, "::1"},
		{"::ffff:192.0.2.1", IPv6, "::ffff:192.0.2.1"},
		{"1:2:3:4:5:6:7:8", IPv6, "1:2:3:4:5:6:7:8"},
	}
	for _, tt := range tests {
		a, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if a.Type() != tt.want {
			t.Errorf("Parse(%q) type = %s, want %s", tt.in, a.Type(), tt.want)
		}
		if got := a.String(); got != tt.str {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.str)
		}
		if len(a.Bytes()) != tt.want.Len() {
			t.Errorf("Parse(%q) has %d raw bytes, want %d", tt.in, len(a.Bytes()), tt.want.Len())
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		in   string
		want error
	}{
		{"", ErrInvalidFormat},
		{"alice", ErrInvalidFormat},
		{"123456789012345678", ErrInvalidFormat},
		{"12:34:56:ab:cd:eg", ErrInvalidMAC},
		{"1234567890abcdefa", ErrInvalidMAC},
		{"192.0.2", ErrInvalidIPv4},
		{"192.0.2.256", ErrInvalidIPv4},
		{"192.0.2.1:80", ErrInvalidIPv4},
		{"2001:db8:::1", ErrInvalidIPv6},
		{"fe80::1%eth0", ErrInvalidIPv6},
		{"12:34:56:ab:cd", ErrInvalidIPv6},
	}
	for _, tt := range tests {
		_, err := Parse(tt.in)
		if !errors.Is(err, tt.want) {
			t.Errorf("Parse(%q) error = %v, want %v", tt.in, err, tt.want)
		}
	}
}

func TestFormatFixedPoint(t *testing.T) {
	for _, s := range []string{
		"12:34:56:ab:cd:ef",
		"00:00:00:00:00:00",
		"2001:db8::43",
		"fe80::1:2",
		"::",
		"10.1.2.3",
	} {
		a := MustParse(s)
		again := MustParse(a.String())
		if Compare(a, again) != 0 || again.String() != s {
			t.Errorf("%q: format/parse not a fixed point, got %q", s, again.String())
		}
	}
}

func TestFromBytes(t *testing.T) {
	a, err := FromBytes(IPv4, []byte{192, 0, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if a.String() != "192.0.2.1" {
		t.Errorf("got %s", a)
	}
	if _, err := FromBytes(MAC, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for short MAC")
	}
	if _, err := FromBytes(Type(9), nil); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestCompareOrdersByTypeThenBytes(t *testing.T) {
	want := []Addr{
		MustParse("00:00:00:00:00:01"),
		MustParse("ff:ff:ff:ff:ff:ff"),
		MustParse("1.2.3.4"),
		MustParse("10.0.0.1"),
		MustParse("255.0.0.0"),
		MustParse("::"),
		MustParse("2001:db8::43"),
	}
	got := slices.Clone(want)
	rand.New(rand.NewSource(1)).Shuffle(len(got), func(i, j int) {
		got[i], got[j] = got[j], got[i]
	})
	slices.SortFunc(got, Compare)
	for i := range want {
		if Compare(got[i], want[i]) != 0 {
			t.Fatalf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCompareIsStrictTotalOrder(t *testing.T) {
	set := []Addr{
		MustParse("aa:bb:cc:dd:ee:ff"),
		MustParse("aa:bb:cc:dd:ee:fe"),
		MustParse("192.0.2.1"),
		MustParse("192.0.2.2"),
		MustParse("2001:db8::1"),
		MustParse("::1"),
	}
	for _, a := range set {
		if Compare(a, a) != 0 {
			t.Errorf("Compare(%s, %s) != 0", a, a)
		}
		for _, b := range set {
			ab, ba := Compare(a, b), Compare(b, a)
			if (ab < 0) != (ba > 0) || (ab == 0) != (ba == 0) {
				t.Errorf("Compare not antisymmetric for %s, %s", a, b)
			}
			for _, c := range set {
				if ab < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Errorf("Compare not transitive for %s < %s < %s", a, b, c)
				}
			}
		}
	}
}

func TestComparePtrNilIsGreatest(t *testing.T) {
	a := MustParse("2001:db8::ffff")
	if ComparePtr(&a, nil) >= 0 {
		t.Error("address should order before nil")
	}
	if ComparePtr(nil, &a) <= 0 {
		t.Error("nil should order after address")
	}
	if ComparePtr(nil, nil) != 0 {
		t.Error("nil should equal nil")
	}
}
