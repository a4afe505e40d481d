package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const defaultChunkSize = 32 << 10

// WAVDevice читает запись из WAV-файла так, будто это микрофон.
// При Realtime куски отдаются с темпом исходной частоты дискретизации.
type WAVDevice struct {
	Path      string
	ChunkSize int
	Realtime  bool
}

func (d *WAVDevice) MimeType() string {
	return "audio/wav"
}

// Open проверяет заголовок файла и возвращает поток его байтов.
func (d *WAVDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(d.Path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", d.Path)
	}

	duration, err := decoder.Duration()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read wav duration: %w", err)
	}

	bytesPerSecond := int(decoder.SampleRate) * int(decoder.NumChans) * int(decoder.BitDepth) / 8
	slog.Info("wav source opened",
		"path", d.Path,
		"sample_rate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"bit_depth", decoder.BitDepth,
		"duration", duration.String(),
	)

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	stream := &wavStream{
		file: file,
		buf:  make([]byte, chunkSize),
	}
	if d.Realtime && bytesPerSecond > 0 {
		stream.pace = time.Duration(float64(chunkSize) / float64(bytesPerSecond) * float64(time.Second))
	}

	return stream, nil
}

type wavStream struct {
	file *os.File
	buf  []byte
	pace time.Duration
}

func (s *wavStream) Read() ([]byte, error) {
	if s.pace > 0 {
		time.Sleep(s.pace)
	}

	n, err := s.file.Read(s.buf)
	return s.buf[:n], err
}

func (s *wavStream) Close() error {
	return s.file.Close()
}
