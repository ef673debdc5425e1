// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

/*
Package progress provides CLI progress spinners.
*/
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinChars []string = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type spinnerState struct {
	label       string
	status      string
	statusIsNew bool
	spinIndex   int
}

type MultiSpinner struct {
	out        io.Writer
	isTerminal bool

	mu       sync.Mutex
	spinners []spinnerState
	ticker   *time.Ticker
	done     chan bool
	spinning bool
}

// NewMultiSpinner creates a new MultiSpinner drawing on stderr
func NewMultiSpinner() *MultiSpinner {
	return NewMultiSpinnerTo(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewMultiSpinnerTo creates a MultiSpinner drawing on out. When out is not a
// terminal only status changes are written, one line each.
func NewMultiSpinnerTo(out io.Writer, isTerminal bool) *MultiSpinner {
	return &MultiSpinner{
		out:        out,
		isTerminal: isTerminal,
		done:       make(chan bool),
	}
}

// AddSpinner adds a spinner to the MultiSpinner
func (ms *MultiSpinner) AddSpinner(label string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	// make sure label is unique
	for _, spinner := range ms.spinners {
		if spinner.label == label {
			err = fmt.Errorf("spinner with label %s already exists", label)
			return
		}
	}
	ms.spinners = append(ms.spinners, spinnerState{label, "?", false, 0})
	return
}

// Start starts the spinner
func (ms *MultiSpinner) Start() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.draw(true)
	ms.ticker = time.NewTicker(250 * time.Millisecond)
	ms.spinning = true
	go ms.onTick()
}

// Finish stops the spinner
func (ms *MultiSpinner) Finish() {
	ms.mu.Lock()
	spinning := ms.spinning
	ms.spinning = false
	ms.mu.Unlock()
	if !spinning {
		return
	}
	ms.ticker.Stop()
	ms.done <- true
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.draw(false)
}

// Status updates the status of a spinner
func (ms *MultiSpinner) Status(label string, status string) (err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for spinnerIdx, spinner := range ms.spinners {
		if spinner.label == label {
			if status != spinner.status {
				ms.spinners[spinnerIdx].status = status
				ms.spinners[spinnerIdx].statusIsNew = true
			}
			return
		}
	}
	err = fmt.Errorf("did not find spinner with label %s", label)
	return
}

func (ms *MultiSpinner) onTick() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.ticker.C:
			ms.mu.Lock()
			ms.draw(true)
			ms.mu.Unlock()
		}
	}
}

// draw must be called with mu held
func (ms *MultiSpinner) draw(goUp bool) {
	for i, spinner := range ms.spinners {
		if !ms.isTerminal && !spinner.statusIsNew {
			continue
		}
		fmt.Fprintf(ms.out, "%-20s  %s  %-40s\n", spinner.label, spinChars[spinner.spinIndex], spinner.status)
		ms.spinners[i].statusIsNew = false
		ms.spinners[i].spinIndex += 1
		if ms.spinners[i].spinIndex >= len(spinChars) {
			ms.spinners[i].spinIndex = 0
		}
	}
	if goUp && ms.isTerminal {
		for range ms.spinners {
			fmt.Fprintf(ms.out, "\x1b[1A")
		}
	}
}
