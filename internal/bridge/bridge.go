// Package bridge forwards distance lines from a serial-attached sensor to the
// ingestion endpoint.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"flood-alerts/internal/config"
)

// ErrInvalidLine is returned for lines that do not start with an integer.
var ErrInvalidLine = errors.New("line does not start with an integer")

// StatusError reports a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with status %d: %s", e.Code, e.Body)
}

// Forwarder posts parsed distances to the server.
type Forwarder struct {
	url    string
	apiKey string
	client *http.Client
	logger zerolog.Logger
}

// NewForwarder constructs a Forwarder for the given endpoint.
func NewForwarder(url, apiKey string, timeout time.Duration, logger zerolog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "bridge").Logger(),
	}
}

// Run opens the serial port and forwards until ctx is cancelled or the port
// fails. Failing to open the port is returned immediately.
func Run(ctx context.Context, cfg config.BridgeConfig, logger zerolog.Logger) error {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	fwd := NewForwarder(cfg.URL, cfg.APIKey, cfg.Timeout, logger)
	fwd.logger.Info().Str("port", cfg.Port).Int("baud", cfg.Baud).Str("url", cfg.URL).Msg("serial bridge listening")

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	err = fwd.Forward(ctx, port)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Forward reads newline-delimited lines from r and posts each valid distance.
// It returns when r is exhausted or fails.
func (f *Forwarder) Forward(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		distance, err := ParseLeadingInt(line)
		if err != nil {
			f.logger.Warn().Str("line", line).Msg("invalid serial data (not a number)")
			continue
		}
		f.logger.Info().Int("jarak", distance).Msg("distance received")

		if err := f.Send(ctx, distance); err != nil {
			f.logFailure(err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read serial: %w", err)
	}
	return nil
}

// Send posts one distance as {"jarak": n}.
func (f *Forwarder) Send(ctx context.Context, distance int) error {
	body, err := json.Marshal(map[string]int{"jarak": distance})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	f.logger.Info().Int("status", resp.StatusCode).Msg("data sent")
	return nil
}

func (f *Forwarder) logFailure(err error) {
	var statusErr *StatusError
	var urlErr interface{ Timeout() bool }
	switch {
	case errors.As(err, &statusErr):
		f.logger.Error().Int("status", statusErr.Code).Str("body", statusErr.Body).Msg("server rejected data")
	case errors.As(err, &urlErr):
		f.logger.Error().Err(err).Bool("timeout", urlErr.Timeout()).Msg("no response from server")
	default:
		f.logger.Error().Err(err).Msg("failed to send data")
	}
}

// ParseLeadingInt reads an optionally signed decimal integer from the start of
// s, ignoring anything after it: "12abc" is 12, "abc" is invalid.
func ParseLeadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	i := 0
	negative := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		negative = s[i] == '-'
		i++
	}

	start := i
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		if n > 1<<31 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidLine, s)
		}
		i++
	}
	if i == start {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLine, s)
	}
	if negative {
		n = -n
	}
	return n, nil
}
