package main

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDerivedName(t *testing.T) {
	tests := []struct {
		input, suffix, want string
	}{
		{"My Song.mp3", "_cleaned", "My_Song_cleaned.wav"},
		{filepath.Join("in", "take.wav"), "", filepath.Join("in", "take.wav")},
		{filepath.Join("a", "b", "x y.flac"), "_cleaned", filepath.Join("a", "b", "x_y_cleaned.wav")},
	}
	for _, tt := range tests {
		if got := derivedName(tt.input, tt.suffix); got != tt.want {
			t.Errorf("derivedName(%q, %q) = %q, want %q", tt.input, tt.suffix, got, tt.want)
		}
	}
}

func TestSplitRequiresOneMode(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"none", []string{"split", "x.wav"}},
		{"both", []string{"split", "x.wav", "--parts", "2", "--start", "0", "--end", "1"}},
		{"half range", []string{"split", "x.wav", "--start", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(append([]string{"-q"}, tt.args...))
			if err := rootCmd.Execute(); err == nil {
				t.Error("expected an error")
			}
			splitCmd.Flags().Visit(func(f *pflag.Flag) { f.Changed = false })
		})
	}
}
