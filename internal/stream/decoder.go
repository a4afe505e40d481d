// Package stream разбирает потоковые ответы LLM в формате построчных
// `data: {json}` записей, завершаемых `data: [DONE]`.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	readSize     = 4096
)

type frameStatus int

const (
	frameSkip frameStatus = iota
	frameDelta
	frameDone
	frameIncomplete
)

type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// UpstreamError описывает ошибку, пришедшую внутри потока.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "stream error: " + e.Message
}

// Decoder инкрементально собирает текст ответа. Незавершенная строка и строка с
// неразобранным JSON остаются в буфере и дополняются следующими байтами.
// Текст только дописывается, уже выданные фрагменты не меняются.
type Decoder struct {
	buf     []byte
	scan    int
	content strings.Builder
	done    bool
	dropped int
}

// NewDecoder создает пустой декодер.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write добавляет очередной кусок байтов и возвращает фрагменты текста, которые он
// завершил, в порядке поступления.
func (d *Decoder) Write(chunk []byte) ([]string, error) {
	if d.done {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var deltas []string
	for !d.done {
		idx := bytes.IndexByte(d.buf[d.scan:], '\n')
		if idx < 0 {
			break
		}
		end := d.scan + idx

		delta, status, err := parseFrame(d.buf[:end])
		if err != nil {
			d.buf = d.buf[end+1:]
			d.scan = 0
			return deltas, err
		}

		if status == frameIncomplete {
			// удерживаемый фрагмент не может продолжиться новой записью
			if d.scan > 0 && startsFrame(d.buf[d.scan:end]) {
				d.dropped++
				d.buf = d.buf[d.scan:]
				d.scan = 0
				continue
			}
			d.scan = end + 1
			continue
		}

		d.buf = d.buf[end+1:]
		d.scan = 0

		switch status {
		case frameDone:
			d.done = true
		case frameDelta:
			d.content.WriteString(delta)
			deltas = append(deltas, delta)
		}
	}

	return deltas, nil
}

// Flush разбирает остаток буфера без завершающего перевода строки (конец потока).
func (d *Decoder) Flush() ([]string, error) {
	if d.done || len(bytes.TrimSpace(d.buf)) == 0 {
		d.buf = nil
		d.scan = 0
		return nil, nil
	}

	rest := d.buf
	d.buf = nil
	d.scan = 0

	delta, status, err := parseFrame(rest)
	if err != nil {
		return nil, err
	}

	switch status {
	case frameDone:
		d.done = true
	case frameDelta:
		d.content.WriteString(delta)
		return []string{delta}, nil
	case frameIncomplete:
		d.dropped++
	}

	return nil, nil
}

// Content возвращает накопленный текст.
func (d *Decoder) Content() string {
	return d.content.String()
}

// Done сообщает, встретился ли `data: [DONE]`.
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped возвращает число фрагментов, которые так и не удалось разобрать.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Consume читает поток до конца или до [DONE], вызывая onDelta для каждого фрагмента,
// и возвращает весь собранный текст.
func Consume(r io.Reader, onDelta func(string) error) (string, error) {
	decoder := NewDecoder()
	buf := make([]byte, readSize)

	emit := func(deltas []string) error {
		if onDelta == nil {
			return nil
		}
		for _, delta := range deltas {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
		return nil
	}

	for !decoder.Done() {
		n, readErr := r.Read(buf)
		if n > 0 {
			deltas, err := decoder.Write(buf[:n])
			if emitErr := emit(deltas); emitErr != nil {
				return decoder.Content(), emitErr
			}
			if err != nil {
				return decoder.Content(), err
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return decoder.Content(), fmt.Errorf("read stream: %w", readErr)
			}
			deltas, err := decoder.Flush()
			if emitErr := emit(deltas); emitErr != nil {
				return decoder.Content(), emitErr
			}
			return decoder.Content(), err
		}
	}

	return decoder.Content(), nil
}

func parseFrame(raw []byte) (string, frameStatus, error) {
	line := strings.TrimRight(string(raw), "\r \t")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return "", frameSkip, nil
	}
	if !strings.HasPrefix(trimmed, dataPrefix) {
		return "", frameSkip, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, dataPrefix))
	if payload == doneSentinel {
		return "", frameDone, nil
	}
	if payload == "" {
		return "", frameSkip, nil
	}

	var parsed chunkPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", frameIncomplete, nil
	}

	if parsed.Error != nil {
		return "", frameSkip, &UpstreamError{Message: parsed.Error.Message}
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Delta.Content == "" {
		return "", frameSkip, nil
	}

	return parsed.Choices[0].Delta.Content, frameDelta, nil
}

func startsFrame(line []byte) bool {
	return strings.HasPrefix(strings.TrimLeft(string(line), " \t"), dataPrefix)
}
