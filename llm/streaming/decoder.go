package streaming

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/evalflow/llm"
	"github.com/BaSui01/evalflow/types"
)

// DataPrefix marks a significant event line.
const DataPrefix = "data:"

// event is the subset of an event payload the decoder reads.
type event struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
}

// ParseLines splits a chunk on newline boundaries, dropping a trailing \r per line.
func ParseLines(chunk string) []string {
	lines := strings.Split(chunk, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// DecodeLine extracts the text fragment carried by one line.
//
// Lines without the data: prefix yield ok=false and no error. A payload that
// is not valid JSON yields an error matching types.ErrDecodeWarning. A record
// without a message field yields ok=false.
func DecodeLine(line string) (fragment string, ok bool, err error) {
	if !strings.HasPrefix(line, DataPrefix) {
		return "", false, nil
	}
	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == "[DONE]" {
		return "", false, nil
	}

	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return "", false, types.NewError(types.ErrCodeDecodeWarning, "error decoding JSON: "+line).
			WithCause(err)
	}
	if ev.Message == nil {
		return "", false, nil
	}
	return ev.Message.Content, true, nil
}

// DecodeStats counts what a decode pass saw.
type DecodeStats struct {
	Events   int
	Warnings int
}

// Decoder folds a response stream into a single string.
type Decoder struct {
	logger *zap.Logger

	acc     strings.Builder
	partial string
	stats   DecodeStats
}

// NewDecoder creates a decoder. A nil logger discards decode warnings.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger.With(zap.String("component", "stream_decoder"))}
}

// Feed consumes one raw chunk.
//
// Each chunk is split on newlines. The trailing segment after the last newline
// is held and prefixed to the next chunk; it is decoded only once its newline
// arrives or Finish is called.
func (d *Decoder) Feed(chunk string) {
	lines := ParseLines(d.partial + chunk)
	d.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		d.consume(line)
	}
}

// Finish flushes any held partial line and returns the trimmed accumulator.
func (d *Decoder) Finish() string {
	if d.partial != "" {
		d.consume(d.partial)
		d.partial = ""
	}
	return strings.TrimSpace(d.acc.String())
}

// Stats returns counters for the current decode pass.
func (d *Decoder) Stats() DecodeStats { return d.stats }

func (d *Decoder) consume(line string) {
	frag, ok, err := DecodeLine(line)
	if err != nil {
		d.stats.Warnings++
		d.logger.Warn("dropping malformed stream line", zap.Error(err))
		return
	}
	if ok {
		d.stats.Events++
		d.acc.WriteString(frag)
	}
}

// Collect drains the stream and returns the aggregated text. The stream is
// closed before returning. A transport error aborts decoding and is returned.
func Collect(stream llm.Stream, logger *zap.Logger) (string, DecodeStats, error) {
	defer stream.Close()

	d := NewDecoder(logger)
	for {
		chunk, err := stream.Next()
		if chunk != "" {
			d.Feed(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return d.Finish(), d.Stats(), nil
			}
			return "", d.Stats(), err
		}
	}
}

// DecodeChunks is the transport-independent fold over in-memory chunks.
func DecodeChunks(chunks []string, logger *zap.Logger) string {
	d := NewDecoder(logger)
	for _, c := range chunks {
		d.Feed(c)
	}
	return d.Finish()
}
