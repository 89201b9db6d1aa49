package providers

import (
	"encoding/base64"
	"strings"
)

// splitDataURI splits a base64 data: URI into its media type and payload.
// Remote URLs are reported as not ok; only the OpenAI API fetches them itself.
func splitDataURI(ref string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(ref, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}

// decodeDataURI returns the raw bytes of a base64 data: URI.
func decodeDataURI(ref string) (mediaType string, raw []byte, ok bool) {
	mediaType, data, ok := splitDataURI(ref)
	if !ok {
		return "", nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, false
	}
	return mediaType, raw, true
}
