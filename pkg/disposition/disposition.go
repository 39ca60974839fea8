// Package disposition extracts the document name from a Content-Disposition
// header.
package disposition

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/iwvelando/tamerun-invest/pkg/apperror"
)

// Header is the response header that names an exported document.
const Header = "Content-Disposition"

var filenamePattern = regexp.MustCompile(`filename\*?=['"]?(?:UTF-\d['"]*)?([^;\r\n"']*)['"]?`)

// FileName returns the percent-decoded file name carried by header. The
// extended filename* parameter wins over a plain filename. A name that is not
// valid percent-encoding is returned as sent.
func FileName(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", &apperror.MissingMetadataError{Header: Header}
	}

	matches := filenamePattern.FindAllStringSubmatch(header, -1)
	if len(matches) == 0 {
		return "", &apperror.MissingMetadataError{Header: Header}
	}

	token := matches[0][1]
	for _, match := range matches {
		if strings.HasPrefix(match[0], "filename*") {
			token = match[1]
			break
		}
	}

	name, err := url.PathUnescape(token)
	if err != nil {
		return token, nil
	}
	return name, nil
}

// Attachment builds a header value carrying both an ASCII fallback name and
// the UTF-8 name in the extended form.
func Attachment(fallback, name string) string {
	return `attachment; filename="` + fallback + `"; filename*=UTF-8''` + url.PathEscape(name)
}
