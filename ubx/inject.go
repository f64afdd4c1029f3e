package ubx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrIncomplete is returned when some bytes of the buffer were not
// forwarded as part of a valid frame.
var ErrIncomplete = errors.New("ubx: buffer not fully forwarded")

// Result summarises one Inject call.
type Result struct {
	// Frames is the number of frames written to the sink.
	Frames int
	// Bytes is the number of bytes written to the sink.
	Bytes int
	// Rejected counts resynchronisations after an invalid frame.
	Rejected int
	// Failed counts valid frames the sink refused.
	Failed int
}

// Injector forwards the valid frames of a buffer to a sink, one Write per
// frame.
type Injector struct {
	// Class restricts accepted frames; 0 accepts any class.
	Class  uint8
	Logger *slog.Logger
}

func (in Injector) logger() *slog.Logger {
	if in.Logger == nil {
		return slog.Default()
	}
	return in.Logger
}

// Inject scans buf from the start. An invalid frame is logged and skipped
// by searching for the next sync byte after its first byte, so one corrupt
// frame does not block the frames behind it. A frame the sink refuses is
// skipped as well; the first sink error is returned.
func (in Injector) Inject(buf []byte, sink io.Writer) (Result, error) {
	var (
		res     Result
		sinkErr error
	)
	off := 0
	for off < len(buf) {
		n, err := Validate(buf, off, in.Class)
		if err != nil {
			res.Rejected++
			next := bytes.IndexByte(buf[off+1:], Sync1)
			skip := len(buf) - off
			if next >= 0 {
				skip = next + 1
			}
			in.logger().Warn("invalid UBX frame", "offset", off, "skipped", skip, "error", err)
			off += skip
			continue
		}

		if _, err := sink.Write(buf[off : off+n]); err != nil {
			in.logger().Error("push UBX frame", "id", buf[off+3], "bytes", n, "error", err)
			res.Failed++
			if sinkErr == nil {
				sinkErr = err
			}
		} else {
			in.logger().Debug("pushed UBX frame", "id", buf[off+3], "bytes", n)
			res.Frames++
			res.Bytes += n
		}
		off += n
	}

	if sinkErr != nil {
		return res, fmt.Errorf("%w: sink: %w", ErrIncomplete, sinkErr)
	}
	if res.Bytes != len(buf) {
		return res, ErrIncomplete
	}
	return res, nil
}
