package cache

import (
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

// Fingerprint hashes the normalized AI request payload. Requests that differ
// only in prompt whitespace share a fingerprint.
func Fingerprint(req types.AIRequest) uint64 {
	d := xxhash.New()
	write := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}

	write(string(req.Mode))
	write(req.TemplateID)
	write(strings.ToLower(req.Language))
	write(strings.Join(strings.Fields(req.Prompt), " "))
	if req.Media != nil {
		write(req.Media.MimeType)
		if len(req.Media.Data) == 0 {
			write(req.Media.URL)
		}
		_, _ = d.Write(req.Media.Data)
	}
	return d.Sum64()
}
