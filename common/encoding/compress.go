package encoding

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// Materialize produces one encoding per requested type from the uploaded
// chunks. The uploaded representation is declared by uploadedAs: requesting
// that same type keeps the bytes verbatim, requesting gzip over identity
// chunks compresses server-side. Anything else must be uploaded
// pre-compressed by the client.
func (b *Builder) Materialize(requested []models.EncodingType, uploadedAs models.EncodingType, chunks [][]byte) (map[models.EncodingType]*models.AssetEncoding, error) {
	if len(requested) == 0 {
		requested = []models.EncodingType{uploadedAs}
	}

	out := make(map[models.EncodingType]*models.AssetEncoding, len(requested))
	for _, target := range requested {
		switch {
		case target == uploadedAs:
			out[target] = b.Build(chunks)
		case target == models.EncodingGzip && uploadedAs == models.EncodingIdentity:
			compressed, err := gzipChunks(chunks)
			if err != nil {
				return nil, fmt.Errorf("gzip encoding: %w", err)
			}
			out[target] = b.Build([][]byte{compressed})
		default:
			return nil, faults.Validation("cannot derive encoding %q from uploaded %q", target, uploadedAs)
		}
	}
	return out, nil
}

func gzipChunks(chunks [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if _, err := zw.Write(chunk); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
