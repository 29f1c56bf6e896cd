package session

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrCommandQueueFull is returned by Post when the host has not drained
// earlier commands yet.
var ErrCommandQueueFull = errors.New("session command queue is full")

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("session is closed")

// CommandKind identifies a host event posted from another goroutine.
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandStop
	CommandSource
)

func (k CommandKind) String() string {
	switch k {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandSource:
		return "source"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is a host event queued by Post and applied at the next Tick.
type Command struct {
	Kind CommandKind
	URL  string
}

const commandQueueSize = 16

// Post queues cmd for the host goroutine. It is safe from any goroutine and
// never blocks.
func (s *Session) Post(cmd Command) error {
	if s.snapshot.Load().Closed {
		return ErrClosed
	}
	if cmd.Kind == CommandSource && cmd.URL == "" {
		return errors.New("source command requires a url")
	}
	select {
	case s.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

func (s *Session) applyCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.logger.Debug("applying command", slog.String("command", cmd.Kind.String()))
			switch cmd.Kind {
			case CommandStart:
				s.Start()
			case CommandStop:
				s.Stop()
			case CommandSource:
				s.SourceChanged(cmd.URL)
			}
		default:
			return
		}
	}
}
