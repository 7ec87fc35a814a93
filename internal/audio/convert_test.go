package audio

import (
	"reflect"
	"testing"
)

func TestBytesToInt16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []int16
	}{
		{"empty", nil, []int16{}},
		{"positive", []byte{0x01, 0x00, 0xFF, 0x00}, []int16{1, 255}},
		{"negative", []byte{0xFF, 0xFF, 0x00, 0x80}, []int16{-1, -32768}},
		{"trailing odd byte ignored", []byte{0x02, 0x00, 0x7F}, []int16{2}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := BytesToInt16(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("BytesToInt16(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestConversionRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 12345, -12345, 32767, -32768}
	got := BytesToInt16(Int16ToBytes(samples))
	if !reflect.DeepEqual(got, samples) {
		t.Fatalf("round trip = %v, want %v", got, samples)
	}
}
