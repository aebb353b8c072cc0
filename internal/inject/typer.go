package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/chaz8081/blekbd/internal/hid"
)

// Typer types a fixed text as raw reports: one press and one release per
// character, paced by Interval so the report queue keeps up.
type Typer struct {
	text     string
	Interval time.Duration
}

// NewTyper returns a Typer for text with a 10 ms pace.
func NewTyper(text string) *Typer {
	return &Typer{text: text, Interval: 10 * time.Millisecond}
}

// Reports returns the raw reports for text. Characters without a key are
// an error.
func Reports(text string) ([]hid.RawReport, error) {
	reports := make([]hid.RawReport, 0, 2*len(text))
	for i := 0; i < len(text); i++ {
		r, ok := hid.CharToReport(text[i])
		if !ok {
			return nil, fmt.Errorf("inject: no key for %q at offset %d", text[i], i)
		}
		reports = append(reports, r, hid.RawReport{})
	}
	return reports, nil
}

// Run sends the reports for the text to out, then returns.
func (t *Typer) Run(ctx context.Context, out chan<- hid.RawReport) error {
	reports, err := Reports(t.text)
	if err != nil {
		return err
	}
	for i, r := range reports {
		if i > 0 && t.Interval > 0 {
			select {
			case <-time.After(t.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
