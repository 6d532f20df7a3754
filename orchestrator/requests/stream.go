package requests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/types"
)

var ErrExhausted = errors.New("request stream exhausted")

const maxLineBytes = 16 << 20

// StreamSource is a single producer, multi consumer queue of requests parsed from
// line delimited JSON.
type StreamSource struct {
	queue         chan types.Request
	maxLine       int
	parseFailures atomic.Uint64
	fed           atomic.Uint64
}

func NewStreamSource(buffer int) *StreamSource {
	if buffer < 0 {
		buffer = 0
	}
	return &StreamSource{queue: make(chan types.Request, buffer), maxLine: maxLineBytes}
}

// Next pops the next request, waiting while the queue is empty. It returns ErrExhausted
// after the producer finished and the queue drained, or ctx.Err() when ctx ends first.
func (s *StreamSource) Next(ctx context.Context) (types.Request, error) {
	select {
	case <-ctx.Done():
		return types.Request{}, ctx.Err()
	default:
	}
	select {
	case request, ok := <-s.queue:
		if !ok {
			return types.Request{}, ErrExhausted
		}
		return request, nil
	case <-ctx.Done():
		return types.Request{}, ctx.Err()
	}
}

// Feed parses r one line at a time and queues each valid request. Malformed or oversized
// lines are reported to errOut and skipped. The queue is closed when r is drained, a read
// fails, or ctx ends. Feed must be called at most once.
func (s *StreamSource) Feed(ctx context.Context, r io.Reader, errOut io.Writer) error {
	defer close(s.queue)

	reader := bufio.NewReaderSize(r, 64*1024)
	line := 0
	for {
		text, tooLong, err := readLine(reader, s.maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Logger.Errorw("Unable to read request stream", "line", line+1, "error", err)
			return fmt.Errorf("read request stream: %w", err)
		}
		line++
		if ctx.Err() != nil {
			return nil
		}
		if tooLong {
			s.parseFailures.Add(1)
			fmt.Fprintf(errOut, "Error parsing JSON RPC request on line %d: line exceeds %d bytes\n", line, s.maxLine)
			continue
		}
		if len(text) == 0 {
			continue
		}
		request, err := parseLine(text)
		if err != nil {
			s.parseFailures.Add(1)
			fmt.Fprintf(errOut, "Error parsing JSON RPC request on line %d: %v\n", line, err)
			continue
		}
		select {
		case s.queue <- request:
			s.fed.Add(1)
		case <-ctx.Done():
			return nil
		}
	}
	logger.Logger.Infow("Request stream finished", "requests", s.fed.Load(), "parseFailures", s.parseFailures.Load())
	return nil
}

// readLine returns the next line without its terminator. A line longer than limit is read
// to its end and discarded, and reported through tooLong. io.EOF is returned only when no
// bytes remain.
func readLine(reader *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	read := 0
	tooLong := false
	for {
		chunk, err := reader.ReadSlice('\n')
		read += len(chunk)
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > limit {
				tooLong = true
				line = nil
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == nil:
			return bytes.TrimRight(line, "\r\n"), tooLong, nil
		case errors.Is(err, io.EOF):
			if read == 0 {
				return nil, false, io.EOF
			}
			return bytes.TrimRight(line, "\r\n"), tooLong, nil
		default:
			return nil, false, err
		}
	}
}

func (s *StreamSource) ParseFailures() uint64 {
	return s.parseFailures.Load()
}

func (s *StreamSource) Fed() uint64 {
	return s.fed.Load()
}

func parseLine(line []byte) (types.Request, error) {
	var request types.Request
	if err := json.Unmarshal(line, &request); err != nil {
		return types.Request{}, err
	}
	if err := request.Validate(); err != nil {
		return types.Request{}, err
	}
	return request, nil
}
