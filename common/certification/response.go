package certification

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/junobuild/satellite/common/models"
)

const statusCertificationKey = ":ic-cert-status"

// ExpressionTemplate serializes the certified header names into the fixed
// v2 certification expression. Names are sorted so the expression, and
// therefore its hash, is identical across replicas.
func ExpressionTemplate(headers []models.HeaderField) string {
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		names = append(names, fmt.Sprintf("%q", strings.ToLower(h.Name)))
	}
	sort.Strings(names)

	return fmt.Sprintf(
		"default_certification(ValidationArgs{certification:Certification{no_request_certification:Empty{},response_certification:ResponseCertification{certified_response_headers:ResponseHeaderList{headers:[%s]}}}})",
		strings.Join(names, ","),
	)
}

// ExpressionHash is the SHA-256 of the serialized expression template
func ExpressionHash(headers []models.HeaderField) [32]byte {
	return sha256.Sum256([]byte(ExpressionTemplate(headers)))
}

// ResponseHash certifies a response as SHA256(header-map-hash || body-hash).
// bodyHash is the encoding's SHA-256; the status code is folded into the
// header map under the :ic-cert-status key.
func ResponseHash(headers []models.HeaderField, statusCode int, bodyHash []byte) [32]byte {
	headerHash := representationIndependentHash(headers, statusCode)

	h := sha256.New()
	h.Write(headerHash[:])
	h.Write(bodyHash)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// representationIndependentHash hashes the header map the way IC request
// hashing does: each entry becomes SHA256(key) || SHA256(value), entries
// are sorted bytewise and the concatenation is hashed. String values hash
// their UTF-8 bytes, the numeric status hashes its LEB128 encoding.
func representationIndependentHash(headers []models.HeaderField, statusCode int) [32]byte {
	entries := make([][]byte, 0, len(headers)+1)

	for _, header := range headers {
		entries = append(entries, hashEntry(
			[]byte(strings.ToLower(header.Name)),
			[]byte(header.Value),
		))
	}
	entries = append(entries, hashEntry(
		[]byte(statusCertificationKey),
		leb128(uint64(statusCode)),
	))

	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i]) < string(entries[j])
	})

	h := sha256.New()
	for _, entry := range entries {
		h.Write(entry)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashEntry(key, value []byte) []byte {
	k := sha256.Sum256(key)
	v := sha256.Sum256(value)
	return append(k[:], v[:]...)
}

func leb128(value uint64) []byte {
	var out []byte
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if value == 0 {
			return out
		}
	}
}
