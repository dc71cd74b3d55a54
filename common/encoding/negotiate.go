package encoding

import (
	"strings"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// SelectEncoding picks the representation to serve for an Accept-Encoding
// header value. Tokens are considered in caller-preference order with a
// mandatory identity fallback appended; the first token present among the
// available encodings wins.
func SelectEncoding(acceptEncoding string, available map[models.EncodingType]*models.AssetEncoding) (models.EncodingType, error) {
	for _, token := range parseAcceptEncoding(acceptEncoding) {
		if _, ok := available[token]; ok {
			return token, nil
		}
	}

	// Unreachable when the asset carries an identity encoding, which every
	// committed asset does unless a client staged compressed-only content.
	return "", faults.Certification("no acceptable encoding among %d available", len(available))
}

// parseAcceptEncoding splits the header into ordered encoding tokens,
// dropping quality annotations, and appends the identity fallback.
func parseAcceptEncoding(header string) []models.EncodingType {
	var tokens []models.EncodingType
	for _, part := range strings.Split(header, ",") {
		token := part
		if idx := strings.IndexByte(token, ';'); idx >= 0 {
			token = token[:idx]
		}
		token = strings.TrimSpace(token)
		if token == "" || token == "*" {
			continue
		}
		tokens = append(tokens, models.EncodingType(strings.ToLower(token)))
	}
	return append(tokens, models.EncodingIdentity)
}
