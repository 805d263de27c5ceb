package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

const maxEventLine = 1 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

type azureStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// readEventStream parses server-sent events from r and forwards one StreamChunk per
// data line until [DONE], EOF, a parse failure, an error event or ctx cancellation.
// Chunks with an empty delta are forwarded too; filtering is the consumer's call.
func readEventStream(ctx context.Context, r io.Reader, out chan<- StreamChunk) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if bytes.Equal(payload, doneMarker) {
			return
		}

		var chunk azureStreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			send(ctx, out, StreamChunk{Err: fmt.Errorf("azure stream: decode chunk: %w", err)})
			return
		}
		if chunk.Error != nil {
			send(ctx, out, StreamChunk{Err: &ProviderError{Op: "azure stream", Code: chunk.Error.Code, Body: chunk.Error.Message}})
			return
		}
		sc := StreamChunk{Usage: chunk.Usage}
		if len(chunk.Choices) > 0 {
			sc.Delta = chunk.Choices[0].Delta.Content
		}
		if !send(ctx, out, sc) {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		send(ctx, out, StreamChunk{Err: fmt.Errorf("azure stream: %w", err)})
	}
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, out chan<- StreamChunk, c StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
