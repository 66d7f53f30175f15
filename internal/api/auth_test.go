package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name      string
		provided  string
		config    string
		wantValid bool
	}{
		{"matching keys", "secret-key", "secret-key", true},
		{"mismatched keys", "wrong-key1", "secret-key", false},
		{"empty provided", "", "secret-key", false},
		{"empty config disables API", "anything", "", false},
		{"both empty", "", "", false},
		{"length mismatch", "short", "secret-key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValid, ValidateAPIKey(tt.provided, tt.config))
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantKey string
		wantErr bool
	}{
		{"valid bearer", "Bearer my-key", "my-key", false},
		{"missing header", "", "", true},
		{"wrong scheme", "Basic my-key", "", true},
		{"empty key", "Bearer ", "", true},
		{"whitespace key", "Bearer    ", "", true},
		{"key with surrounding space", "Bearer  my-key ", "my-key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/functions", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			key, err := ExtractAPIKey(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
