package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no active recording")
	ErrEmptyRecording   = errors.New("recording is empty")
)

// Stream отдает аудио по кускам. Read возвращает io.EOF, когда источник исчерпан.
type Stream interface {
	Read() ([]byte, error)
	Close() error
}

// Device захватывает источник звука.
type Device interface {
	Open(ctx context.Context) (Stream, error)
	MimeType() string
}

type Recording struct {
	Data     []byte
	Base64   string
	MimeType string
	Duration time.Duration
}

// Recorder буферизует куски аудио между Start и Stop.
// Одновременно активна не более чем одна запись.
type Recorder struct {
	device Device
	now    func() time.Time

	mu      sync.Mutex
	session *session
}

type session struct {
	stream  Stream
	started time.Time
	done    chan struct{}

	release  sync.Once
	mu       sync.Mutex
	chunks   [][]byte
	stopping bool
	readErr  error
}

// NewRecorder создает диктофон поверх устройства.
func NewRecorder(device Device) *Recorder {
	return &Recorder{
		device: device,
		now:    time.Now,
	}
}

// Start захватывает устройство и начинает буферизацию.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return ErrAlreadyRecording
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}

	s := &session{
		stream:  stream,
		started: r.now(),
		done:    make(chan struct{}),
	}
	r.session = s

	go s.read()

	return nil
}

// Stop освобождает устройство и склеивает накопленные куски в одну запись.
func (r *Recorder) Stop() (Recording, error) {
	s, err := r.detach()
	if err != nil {
		return Recording{}, err
	}

	s.close()
	<-s.done

	duration := r.now().Sub(s.started)

	s.mu.Lock()
	data := bytes.Join(s.chunks, nil)
	readErr := s.readErr
	s.mu.Unlock()

	if len(data) == 0 {
		if readErr != nil {
			return Recording{}, fmt.Errorf("read audio: %w", readErr)
		}
		return Recording{}, ErrEmptyRecording
	}
	if readErr != nil {
		slog.Warn("recording finished with read error", "error", readErr, "bytes", len(data))
	}

	return Recording{
		Data:     data,
		Base64:   base64.StdEncoding.EncodeToString(data),
		MimeType: r.device.MimeType(),
		Duration: duration,
	}, nil
}

// Cancel отбрасывает буфер и сразу освобождает устройство.
func (r *Recorder) Cancel() error {
	s, err := r.detach()
	if err != nil {
		return err
	}

	s.close()
	<-s.done

	s.mu.Lock()
	s.chunks = nil
	s.mu.Unlock()

	return nil
}

// Close освобождает устройство, если запись еще активна.
func (r *Recorder) Close() error {
	err := r.Cancel()
	if errors.Is(err, ErrNotRecording) {
		return nil
	}
	return err
}

// Recording сообщает, идет ли запись.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Elapsed возвращает целое число секунд с начала записи или ноль, если записи нет.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return 0
	}
	return int(r.now().Sub(r.session.started) / time.Second)
}

// Done закрывается, когда источник закончился сам (например, конец файла).
// Без активной записи возвращает nil.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil
	}
	return r.session.done
}

func (r *Recorder) detach() (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	if s == nil {
		return nil, ErrNotRecording
	}
	r.session = nil
	return s, nil
}

func (s *session) read() {
	defer close(s.done)
	defer s.close()

	for {
		chunk, err := s.stream.Read()
		if len(chunk) > 0 {
			buf := make([]byte, len(chunk))
			copy(buf, chunk)

			s.mu.Lock()
			s.chunks = append(s.chunks, buf)
			s.mu.Unlock()
		}

		if err != nil {
			s.mu.Lock()
			if !s.stopping && !errors.Is(err, io.EOF) {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *session) close() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.release.Do(func() {
		if err := s.stream.Close(); err != nil {
			slog.Warn("failed to release audio device", "error", err)
		}
	})
}
