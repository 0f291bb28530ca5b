package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// Scanner checks an upload before it is stored.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// NewScanner returns a clamd scanner, or a scanner that accepts everything when addr is empty.
func NewScanner(addr string) Scanner {
	if addr == "" {
		return NopScanner{}
	}
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// ClamdScanner streams uploads to a clamd daemon.
type ClamdScanner struct {
	client *clamd.Clamd
}

func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	infected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				if infected {
					return ErrInfected
				}
				return nil
			}
			switch res.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				infected = true
			default:
				return fmt.Errorf("clamd: %s %s", res.Status, res.Description)
			}
		}
	}
}

// NopScanner accepts every upload.
type NopScanner struct{}

func (NopScanner) Scan(context.Context, io.Reader) error { return nil }
