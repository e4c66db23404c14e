package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ashishvijaywargiya/ofbiz-mcp/jsonrpc"
)

// Transport handles newline-delimited JSON-RPC over a reader/writer pair,
// typically stdin and stdout.
type Transport struct {
	handler jsonrpc.Handler
	scanner *bufio.Scanner
	writer  *json.Encoder
	bufOut  *bufio.Writer
	logger  *slog.Logger
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(handler jsonrpc.Handler, in io.Reader, out io.Writer, logger *slog.Logger) *Transport {
	scanner := bufio.NewScanner(in)
	// Set a reasonable max size for each line
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bufOut := bufio.NewWriter(out)
	return &Transport{
		handler: handler,
		scanner: scanner,
		writer:  json.NewEncoder(bufOut),
		bufOut:  bufOut,
		logger:  logger,
	}
}

// Run reads requests until EOF or context cancellation. Requests are
// handled one at a time; notifications produce no output.
func (t *Transport) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if !t.scanner.Scan() {
				if err := t.scanner.Err(); err != nil {
					return fmt.Errorf("scanner error: %w", err)
				}
				return nil
			}

			line := t.scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			request, rpcErr := jsonrpc.DecodeRequest(line)
			if rpcErr != nil {
				response := jsonrpc.NewResponse(nil, nil, rpcErr)
				t.write(ctx, &response)
				continue
			}

			if response := t.handler.Handle(ctx, request); response != nil {
				t.write(ctx, response)
			}
		}
	}
}

func (t *Transport) write(ctx context.Context, response *jsonrpc.Response) {
	if err := t.writer.Encode(response); err != nil {
		t.logger.ErrorContext(ctx, "error encoding response", "error", err)
	}
	if err := t.bufOut.Flush(); err != nil {
		t.logger.ErrorContext(ctx, "error flushing response", "error", err)
	}
}
