// Copyright (c) 2026 The Mentat Authors. All rights reserved.
// SPDX-License-Identifier: MIT

package terminal

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const (
	maxFinishTime = time.Second
	minCharSleep  = 2 * time.Millisecond
	maxCharSleep  = 6 * time.Millisecond
	finishSleep   = 2 * time.Millisecond
)

// Printer paces terminal output one character at a time so streamed
// responses read smoothly instead of arriving in bursts. Add queues
// characters for a background goroutine; Finish drains the queue at the
// faster finishing pace and waits for it, Shutdown discards what is left.
// A printer serves one response and cannot be reused after Finish or
// Shutdown.
type Printer struct {
	out io.Writer

	mu        sync.Mutex
	queue     []string
	finishing bool
	shutdown  bool

	done chan struct{}
}

// NewPrinter starts the printing goroutine writing to out.
func NewPrinter(out io.Writer) *Printer {
	p := &Printer{out: out, done: make(chan struct{})}
	go p.run()
	return p
}

// Add queues s for printing, colored with c when c is non-nil. The color
// codes ride on the first and last characters so pacing never emits a
// partial escape sequence. Strings added after Finish are dropped.
func (p *Printer) Add(s string, c *color.Color) {
	if s == "" {
		return
	}
	chunks := splitChunks(s, c)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finishing || p.shutdown {
		return
	}
	p.queue = append(p.queue, chunks...)
}

// Finish lets the queue drain and blocks until everything queued has been
// written.
func (p *Printer) Finish() {
	p.mu.Lock()
	p.finishing = true
	p.mu.Unlock()
	<-p.done
}

// Shutdown stops the printer immediately, discarding queued output.
func (p *Printer) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	<-p.done
}

func (p *Printer) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if p.shutdown {
			p.mu.Unlock()
			return
		}
		var chunk string
		if len(p.queue) > 0 {
			chunk = p.queue[0]
			p.queue = p.queue[1:]
		} else if p.finishing {
			p.mu.Unlock()
			return
		}
		sleep := p.sleepTime()
		p.mu.Unlock()

		if chunk != "" {
			io.WriteString(p.out, chunk)
		}
		time.Sleep(sleep)
	}
}

// sleepTime budgets the per-character delay so a long backlog still
// finishes within about a second. Callers hold p.mu.
func (p *Printer) sleepTime() time.Duration {
	required := maxFinishTime / time.Duration(len(p.queue)+1)
	limit := maxCharSleep
	if p.finishing {
		limit = finishSleep
	}
	if required < limit {
		limit = required
	}
	if limit < minCharSleep {
		return minCharSleep
	}
	return limit
}

// splitChunks explodes s into per-character chunks, attaching the color's
// escape prefix to the first and its reset to the last.
func splitChunks(s string, c *color.Color) []string {
	runes := []rune(s)
	chunks := make([]string, len(runes))
	for i, r := range runes {
		chunks[i] = string(r)
	}
	if c != nil {
		colored := c.Sprint(s)
		if idx := strings.Index(colored, s); idx >= 0 {
			chunks[0] = colored[:idx] + chunks[0]
			chunks[len(chunks)-1] += colored[idx+len(s):]
		}
	}
	return chunks
}
