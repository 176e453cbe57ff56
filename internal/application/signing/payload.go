package signing

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/garyjia/dealflow/internal/domain/entity"
)

// MaxImageBytes is the largest decoded signature image accepted
const MaxImageBytes = 2 << 20

var imagePrefixes = []struct {
	prefix      string
	contentType string
	ext         string
}{
	{"data:image/png;base64,", entity.ContentTypePNG, "png"},
	{"data:image/svg+xml;base64,", entity.ContentTypeSVG, "svg"},
}

// SignatureImage is a decoded signature payload
type SignatureImage struct {
	ContentType string
	Ext         string
	Data        []byte
}

// ParseSignatureImage decodes a base64 data URI holding a PNG or SVG image
func ParseSignatureImage(dataURI string) (*SignatureImage, error) {
	for _, p := range imagePrefixes {
		if !strings.HasPrefix(dataURI, p.prefix) {
			continue
		}

		encoded := dataURI[len(p.prefix):]
		if base64.StdEncoding.DecodedLen(len(encoded)) > MaxImageBytes+3 {
			return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSignaturePayload, MaxImageBytes)
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignaturePayload, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty image", ErrInvalidSignaturePayload)
		}
		if len(data) > MaxImageBytes {
			return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidSignaturePayload, MaxImageBytes)
		}

		return &SignatureImage{ContentType: p.contentType, Ext: p.ext, Data: data}, nil
	}

	return nil, fmt.Errorf("%w: expected a base64 PNG or SVG data URI", ErrInvalidSignaturePayload)
}
