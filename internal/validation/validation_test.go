package validation

import (
	"errors"
	"testing"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "checksummed",
			input: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			want:  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{
			name:  "lower case",
			input: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			want:  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{
			name:  "upper case without prefix",
			input: "5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED",
			want:  "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{
			name:    "bad checksum",
			input:   "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "zero",
			input:   "0x0000000000000000000000000000000000000000",
			wantErr: ErrZeroAddress,
		},
		{
			name:    "too short",
			input:   "0x1234",
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "not hex",
			input:   "0xZZaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			wantErr: ErrInvalidAddress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddress(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAddress(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress(%q) unexpected error: %v", tt.input, err)
			}
			if got.Hex() != tt.want {
				t.Fatalf("ParseAddress(%q) = %s, want %s", tt.input, got.Hex(), tt.want)
			}
		})
	}
}

func TestParseAddresses_RejectsWholeList(t *testing.T) {
	_, err := ParseAddresses([]string{
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"0x0000000000000000000000000000000000000000",
	})
	if !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("error = %v, want ErrZeroAddress", err)
	}

	got, err := ParseAddresses(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty list: got %v, %v", got, err)
	}
}

func TestParseWei(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		valid bool
	}{
		{name: "integer", input: "1000000000000000000", want: "1000000000000000000", valid: true},
		{name: "above uint64", input: "38000000000000000000000", want: "38000000000000000000000", valid: true},
		{name: "zero", input: "0"},
		{name: "negative", input: "-5"},
		{name: "plus sign", input: "+5"},
		{name: "decimal", input: "1.5"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWei(tt.input)
			if !tt.valid {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseWei(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWei(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Fatalf("ParseWei(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseNonNegativeWei(t *testing.T) {
	got, err := ParseNonNegativeWei("0")
	if err != nil || got.Sign() != 0 {
		t.Fatalf("ParseNonNegativeWei(0) = %v, %v", got, err)
	}
	if _, err := ParseNonNegativeWei("-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative: error = %v", err)
	}
}

func TestParseEther(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		valid bool
	}{
		{name: "whole", input: "1", want: "1000000000000000000", valid: true},
		{name: "fraction", input: "0.1", want: "100000000000000000", valid: true},
		{name: "leading dot", input: ".5", want: "500000000000000000", valid: true},
		{name: "one wei", input: "0.000000000000000001", want: "1", valid: true},
		{name: "goal", input: "38000", want: "38000000000000000000000", valid: true},
		{name: "too precise", input: "0.0000000000000000001"},
		{name: "zero", input: "0.0"},
		{name: "letters", input: "1e18"},
		{name: "negative", input: "-1"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEther(tt.input)
			if !tt.valid {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseEther(%q) error = %v, want ErrInvalidAmount", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEther(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Fatalf("ParseEther(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
