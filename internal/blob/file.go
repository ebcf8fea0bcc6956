package blob

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackExtension = ".bin"

var extensionPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// encodings accepted for attachment payloads, padded or not, standard or
// URL-safe alphabet.
var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeDataURL returns the bytes carried by a data URL such as
// "data:image/png;base64,iVBORw0...". A bare base64 string is accepted too.
func DecodeDataURL(data string) ([]byte, error) {
	payload := data
	if strings.HasPrefix(data, "data:") {
		_, encoded, found := strings.Cut(data, ",")
		if !found {
			return nil, fmt.Errorf("%w: data URL without payload", ErrInvalidData)
		}
		payload = encoded
	}

	var firstErr error
	for _, encoding := range encodings {
		decoded, err := encoding.DecodeString(payload)
		if err == nil {
			return decoded, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidData, firstErr)
}

// DeriveName builds the stored name of an attachment from the upload time and
// the extension of the original name. When the original name has no usable
// extension the content is sniffed instead.
func DeriveName(original string, data []byte, at time.Time) string {
	return fmt.Sprintf("%d%s", at.UnixNano(), extension(original, data))
}

func extension(original string, data []byte) string {
	if ext := filepath.Ext(filepath.Base(original)); extensionPattern.MatchString(ext) {
		return ext
	}
	if ext := mimetype.Detect(data).Extension(); extensionPattern.MatchString(ext) {
		return ext
	}
	return fallbackExtension
}
