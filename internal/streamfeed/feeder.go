// Package streamfeed serves the input streams of a compiled program over a
// line-oriented serial link. The sequencer host requests the next chunk of a
// stream with "advance <stream>" and the feeder answers
// "push <stream> <n> v1,...,vn", or "empty <stream>" when nothing is queued.
package streamfeed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/seqsweep/internal/monitoring"
	"github.com/banshee-data/seqsweep/internal/rtprog"
	"github.com/banshee-data/seqsweep/internal/sweep"
)

// ErrWriteFailed is returned when a reply is only partially written.
var ErrWriteFailed = errors.New("failed to write reply to port")

// Feeder holds a FIFO of value chunks per declared input stream.
type Feeder[T Port] struct {
	port T

	mu     sync.Mutex
	sizes  map[string]int
	queues map[string][][]float64
	served map[string]int
}

// NewFeeder creates a feeder on port for the given input streams.
func NewFeeder[T Port](port T, streams ...*rtprog.InputStream) *Feeder[T] {
	f := &Feeder[T]{
		port:   port,
		sizes:  make(map[string]int),
		queues: make(map[string][][]float64),
		served: make(map[string]int),
	}
	for _, s := range streams {
		f.sizes[s.Name] = s.Size
	}
	return f
}

// Streams returns the declared stream sizes by name.
func (f *Feeder[T]) Streams() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.sizes))
	for k, v := range f.sizes {
		out[k] = v
	}
	return out
}

// Enqueue appends one chunk for stream. The chunk must have exactly the
// declared stream size.
func (f *Feeder[T]) Enqueue(stream string, chunk []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.sizes[stream]
	if !ok {
		return fmt.Errorf("%w: unknown input stream %q", sweep.ErrInvalidValue, stream)
	}
	if len(chunk) != size {
		return fmt.Errorf("%w: chunk of %d values for stream %s of size %d",
			sweep.ErrInvalidValue, len(chunk), stream, size)
	}
	f.queues[stream] = append(f.queues[stream], append([]float64(nil), chunk...))
	return nil
}

// EnqueueAll splits values into chunks of the declared size of stream and
// queues them in order. len(values) must be a multiple of the size.
func (f *Feeder[T]) EnqueueAll(stream string, values []float64) error {
	f.mu.Lock()
	size, ok := f.sizes[stream]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown input stream %q", sweep.ErrInvalidValue, stream)
	}
	if len(values) == 0 || len(values)%size != 0 {
		return fmt.Errorf("%w: %d values do not split into chunks of %d for stream %s",
			sweep.ErrInvalidValue, len(values), size, stream)
	}
	for i := 0; i < len(values); i += size {
		if err := f.Enqueue(stream, values[i:i+size]); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of queued chunks for stream.
func (f *Feeder[T]) Pending(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues[stream])
}

// Served returns the number of chunks pushed for stream.
func (f *Feeder[T]) Served(stream string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.served[stream]
}

// Handle answers one request line. Blank lines get no reply.
func (f *Feeder[T]) Handle(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	if fields[0] != "advance" || len(fields) != 2 {
		return "", fmt.Errorf("%w: unsupported request %q", sweep.ErrInvalidValue, line)
	}
	stream := fields[1]

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sizes[stream]; !ok {
		return "", fmt.Errorf("%w: unknown input stream %q", sweep.ErrInvalidValue, stream)
	}
	q := f.queues[stream]
	if len(q) == 0 {
		monitoring.Logf("advance on %s with an empty queue", stream)
		return "empty " + stream, nil
	}
	chunk := q[0]
	f.queues[stream] = q[1:]
	f.served[stream]++
	return formatPush(stream, chunk), nil
}

func formatPush(stream string, chunk []float64) string {
	vals := make([]string, len(chunk))
	for i, v := range chunk {
		vals[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf("push %s %d %s", stream, len(chunk), strings.Join(vals, ","))
}

// Monitor reads request lines from the port and writes replies until ctx is
// done or the port reaches EOF. Bad requests are logged and answered with an
// "error" line.
func (f *Feeder[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(f.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks, so it runs apart from the select on ctx.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			reply, err := f.Handle(line)
			if err != nil {
				monitoring.Logf("streamfeed: %v", err)
				reply = "error " + err.Error()
			}
			if reply == "" {
				continue
			}
			if err := f.write(reply); err != nil {
				return err
			}
		}
	}
}

func (f *Feeder[T]) write(reply string) error {
	msg := reply + "\n"
	n, err := f.port.Write([]byte(msg))
	if err != nil {
		return err
	}
	if n != len(msg) {
		return ErrWriteFailed
	}
	return nil
}

// Close closes the port.
func (f *Feeder[T]) Close() error { return f.port.Close() }
