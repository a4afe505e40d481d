package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Archive сохраняет исходные голосовые записи.
type Archive interface {
	Save(ctx context.Context, userID uuid.UUID, data []byte, mimeType string) (string, error)
	Close() error
}

// NopArchive ничего не сохраняет. Используется, когда бакет не настроен.
type NopArchive struct{}

func (NopArchive) Save(context.Context, uuid.UUID, []byte, string) (string, error) {
	return "", nil
}

func (NopArchive) Close() error {
	return nil
}

// GCSArchive складывает записи в бакет Google Cloud Storage.
type GCSArchive struct {
	client  *storage.Client
	bucket  string
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewGCSArchive создает архив. Учетные данные берутся из Application Default Credentials.
func NewGCSArchive(ctx context.Context, bucket, prefix string, timeout time.Duration) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSArchive{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Save загружает запись и возвращает ее gs:// URI.
func (a *GCSArchive) Save(ctx context.Context, userID uuid.UUID, data []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	name := ObjectName(a.prefix, userID, a.now(), mimeType)

	writer := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = mimeType
	writer.Metadata = map[string]string{"user_id": userID.String()}

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("copy recording to gcs writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", a.bucket, name), nil
}

func (a *GCSArchive) Close() error {
	return a.client.Close()
}

// ObjectName строит путь объекта вида prefix/user/2006/01/02/150405-<id>.ext.
func ObjectName(prefix string, userID uuid.UUID, at time.Time, mimeType string) string {
	at = at.UTC()
	file := fmt.Sprintf("%s-%s.%s", at.Format("150405"), uuid.NewString(), extension(mimeType))
	return path.Join(prefix, userID.String(), at.Format("2006/01/02"), file)
}

func extension(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "audio/aac":
		return "m4a"
	default:
		return "webm"
	}
}
