package main

import "testing"

func TestGetEnv(t *testing.T) {
	t.Setenv("ANVIL_TEST_VAR", "set")

	if got := getEnv("ANVIL_TEST_VAR", "default"); got != "set" {
		t.Errorf("getEnv() = %q, want set", got)
	}
	if got := getEnv("ANVIL_TEST_UNSET", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback int
		expected int
	}{
		{"valid int", "42", 0, 42},
		{"empty uses fallback", "", 7, 7},
		{"garbage uses fallback", "many", 7, 7},
		{"zero", "0", 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("ANVIL_TEST_INT", tt.value)
			}
			if got := getEnvInt("ANVIL_TEST_INT", tt.fallback); got != tt.expected {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.expected)
			}
		})
	}
}
