// AngelaMos | 2026
// artifact.go

package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/disintegration/imaging"
)

const (
	jpegQuality = 85
	extension   = ".jpg"
	stampLayout = "20060102150405"
	maxNameLen  = 80
)

var ErrInvalidImage = errors.New("image could not be decoded")

// Store persists generated images. Put returns an opaque reference that
// Delete accepts.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
}

// Normalize decodes raw image bytes, honours EXIF orientation, caps the
// width at maxWidth and re-encodes as JPEG.
func Normalize(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// FileName builds "<query>_<yyyymmddhhmmss>.jpg" keeping only letters,
// digits and underscores from the query.
func FileName(query string, now time.Time) string {
	var b strings.Builder
	for _, r := range query {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}

	safe := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	safe = strings.TrimLeftFunc(safe, unicode.IsSpace)
	safe = strings.Join(strings.Fields(safe), "_")
	if len(safe) > maxNameLen {
		safe = strings.TrimRight(truncateRunes(safe, maxNameLen), "_")
	}
	if safe == "" {
		safe = "image"
	}

	return safe + "_" + now.UTC().Format(stampLayout) + extension
}

// Key namespaces a file name under its owning account.
func Key(accountID, fileName string) string {
	return path.Join(accountID, fileName)
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// nthKey returns key with a numeric suffix before the extension for the
// nth collision: cat_20260101000000.jpg -> cat_20260101000000_2.jpg.
func nthKey(key string, n int) string {
	if n <= 1 {
		return key
	}
	ext := path.Ext(key)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(key, ext), n, ext)
}
