package model

import "testing"

func TestParseQuantity(t *testing.T) {
	cases := map[string]uint64{
		"0x64":   100,
		"0x0":    0,
		"":       0,
		"64":     0,
		"0xzz":   0,
		"0x1a2b": 6699,
	}
	for in, want := range cases {
		if got := ParseQuantity(in); got != want {
			t.Fatalf("ParseQuantity(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestBlockNumbersUseQuantityDecoding(t *testing.T) {
	if got := (RawLog{BlockNumber: "0x10"}).Block(); got != 16 {
		t.Fatalf("log block = %d", got)
	}
	if got := (Receipt{BlockNumber: "0x11"}).Block(); got != 17 {
		t.Fatalf("receipt block = %d", got)
	}
}
