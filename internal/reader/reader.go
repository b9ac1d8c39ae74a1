// Package reader supplies the raw text of memory files for embedding,
// extraction, and the load operation. Files are decoded from legacy
// encodings when needed and cached with a short TTL.
package reader

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	cacheTTL      = 30 * time.Second
	maxCacheItems = 1 << 12
	maxCacheCost  = 32 << 20 // bytes of cached content
)

type Reader struct {
	cache *ristretto.Cache
}

func New() (*Reader, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCacheItems * 10,
		MaxCost:     maxCacheCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &Reader{cache: cache}, nil
}

// Read returns the decoded text of a memory file.
func (r *Reader) Read(path string) (string, error) {
	if cached, ok := r.cache.Get(path); ok {
		if content, ok := cached.(string); ok {
			return content, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read memory file: %w", err)
	}

	content, err := decode(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}

	r.cache.SetWithTTL(path, content, int64(len(content)), cacheTTL)
	return content, nil
}

// ReadSection returns the file content sliced to the section whose
// heading anchor matches anchorID; an empty anchor returns everything.
// The section runs from its heading to the next heading of the same or
// higher level.
func (r *Reader) ReadSection(path, anchorID string) (string, error) {
	content, err := r.Read(path)
	if err != nil {
		return "", err
	}
	if anchorID == "" {
		return content, nil
	}

	section := SliceSection(content, anchorID)
	if section == "" {
		return "", fmt.Errorf("anchor %q not found in %s", anchorID, path)
	}
	return section, nil
}

// Invalidate drops a cached file after it changes on disk.
func (r *Reader) Invalidate(path string) {
	r.cache.Del(path)
}

// SliceSection extracts the markdown section for a heading anchor. The
// anchor is the heading text lowercased with spaces as hyphens, the usual
// markdown anchor convention.
func SliceSection(content, anchorID string) string {
	lines := strings.Split(content, "\n")
	start := -1
	level := 0

	for i, line := range lines {
		h := headingLevel(line)
		if h == 0 {
			continue
		}
		if anchorFor(line) == strings.ToLower(anchorID) {
			start = i
			level = h
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if h := headingLevel(lines[i]); h > 0 && h <= level {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

func headingLevel(line string) int {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for _, r := range trimmed {
		if r != '#' {
			break
		}
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	if len(trimmed) <= level || trimmed[level] != ' ' {
		return 0
	}
	return level
}

func anchorFor(line string) string {
	text := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
	text = strings.ToLower(text)
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// decode converts file bytes to a UTF-8 string, honoring BOMs and falling
// back to windows-1252 for byte sequences that are not valid UTF-8.
func decode(data []byte) (string, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF:
		return string(data[3:]), nil
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE:
		return transformToString(data, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return transformToString(data, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder())
	}

	if utf8.Valid(data) {
		return string(data), nil
	}
	return transformToString(data, charmap.Windows1252.NewDecoder())
}

func transformToString(data []byte, t transform.Transformer) (string, error) {
	decoded, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
