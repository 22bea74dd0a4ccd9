package service

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"story-weaver/internal/models"

	"github.com/gabriel-vasile/mimetype"
)

// EncodeImage проверяет размер изображения и кодирует его в base64.
// MIME-тип определяется по содержимому; declaredMIME используется, только если
// определение не дало image/*.
func EncodeImage(data []byte, declaredMIME string, maxBytes int) (*models.ImagePart, error) {
	if len(data) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", models.ErrImageTooLarge, len(data), maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", models.ErrImageEncoding)
	}

	mimeType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mimeType, "image/") {
		declared := strings.ToLower(strings.TrimSpace(declaredMIME))
		if !strings.HasPrefix(declared, "image/") {
			return nil, fmt.Errorf("%w: unsupported content type %q", models.ErrImageEncoding, mimeType)
		}
		mimeType = declared
	}

	return &models.ImagePart{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Raw:      data,
	}, nil
}

// EncodeImageReader читает не больше maxBytes+1 байт, чтобы не загружать в память
// заведомо слишком большие файлы.
func EncodeImageReader(r io.Reader, declaredMIME string, maxBytes int) (*models.ImagePart, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(maxBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageEncoding, err)
	}
	return EncodeImage(data, declaredMIME, maxBytes)
}

// EncodeImageFile кодирует файл с диска. Размер проверяется до чтения.
func EncodeImageFile(path string, maxBytes int) (*models.ImagePart, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageEncoding, err)
	}
	if info.Size() > int64(maxBytes) {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", models.ErrImageTooLarge, info.Size(), maxBytes)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrImageEncoding, err)
	}
	defer f.Close()
	return EncodeImageReader(f, "", maxBytes)
}
