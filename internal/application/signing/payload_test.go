package signing

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignatureImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake-image")
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><path d="M0 0L10 10"/></svg>`)

	tests := []struct {
		name        string
		input       string
		wantType    string
		wantExt     string
		wantErr     bool
		wantPayload []byte
	}{
		{
			name:        "png data uri",
			input:       "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			wantType:    "image/png",
			wantExt:     "png",
			wantPayload: png,
		},
		{
			name:        "svg data uri",
			input:       "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(svg),
			wantType:    "image/svg+xml",
			wantExt:     "svg",
			wantPayload: svg,
		},
		{name: "jpeg is rejected", input: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(png), wantErr: true},
		{name: "raw base64 without prefix", input: base64.StdEncoding.EncodeToString(png), wantErr: true},
		{name: "empty image", input: "data:image/png;base64,", wantErr: true},
		{name: "malformed base64", input: "data:image/png;base64,!!!not-base64", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseSignatureImage(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSignaturePayload), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, img.ContentType)
			assert.Equal(t, tt.wantExt, img.Ext)
			assert.Equal(t, tt.wantPayload, img.Data)
		})
	}
}

func TestParseSignatureImage_SizeLimit(t *testing.T) {
	atLimit := make([]byte, MaxImageBytes)
	_, err := ParseSignatureImage("data:image/png;base64," + base64.StdEncoding.EncodeToString(atLimit))
	assert.NoError(t, err)

	overLimit := make([]byte, MaxImageBytes+1)
	_, err = ParseSignatureImage("data:image/png;base64," + base64.StdEncoding.EncodeToString(overLimit))
	assert.True(t, errors.Is(err, ErrInvalidSignaturePayload))

	huge := "data:image/png;base64," + strings.Repeat("A", 4*MaxImageBytes)
	_, err = ParseSignatureImage(huge)
	assert.True(t, errors.Is(err, ErrInvalidSignaturePayload))
}

func TestNewToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
		assert.True(t, validToken(token))
		assert.Equal(t, strings.ToLower(token), token)
		assert.False(t, seen[token], "duplicate token")
		seen[token] = true
	}

	assert.False(t, validToken("short"))
	assert.False(t, validToken(strings.Repeat("z", 64)))
}
