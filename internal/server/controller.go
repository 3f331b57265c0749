// File: internal/server/controller.go
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/walkthrough"
)

// ErrUnknownCommand is returned for a control name the controller does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Control names accepted by Controller.Do.
const (
	CommandLoad    = "load"
	CommandExample = "example"
	CommandStart   = "start"
	CommandNext    = "next"
	CommandPrev    = "prev"
	CommandReset   = "reset"
	CommandState   = "state"
)

// Commands lists every control in the order a panel shows them.
var Commands = []string{CommandLoad, CommandExample, CommandStart, CommandPrev, CommandNext, CommandReset, CommandState}

// Controller maps named controls onto a session. It is shared by the REST
// handlers, the websocket command channel and the MCP tools.
type Controller struct {
	session *walkthrough.Session
	timeout time.Duration
}

// NewController wraps session. A positive timeout bounds each operation.
func NewController(session *walkthrough.Session, timeout time.Duration) *Controller {
	return &Controller{session: session, timeout: timeout}
}

func (c *Controller) Session() *walkthrough.Session { return c.session }

// Do runs one control and returns the resulting state.
func (c *Controller) Do(ctx context.Context, cmd CommandData) (ControlResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		outcome *walkthrough.Outcome
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cmd.Command)) {
	case CommandLoad:
		err = c.session.LoadBytes(ctx, []byte(cmd.Contents), ParseFormat(cmd.Format))
	case CommandExample:
		err = c.session.LoadExample(ctx)
	case CommandStart:
		err = c.session.Start(ctx)
	case CommandNext:
		outcome, err = c.session.Advance(ctx)
	case CommandPrev:
		err = c.session.Retreat(ctx)
	case CommandReset:
		err = c.session.Reset(ctx)
	case CommandState:
	default:
		return ControlResult{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Command)
	}
	if err != nil {
		return ControlResult{}, err
	}
	return ControlResult{State: c.session.State(), Outcome: outcome}, nil
}

// ParseFormat maps "yaml"/"yml" (or a matching MIME type) to FormatYAML and
// anything else to FormatJSON.
func ParseFormat(name string) schemas.CollectionFormat {
	lower := strings.ToLower(strings.TrimSpace(name))
	if strings.Contains(lower, "yaml") || lower == "yml" {
		return schemas.FormatYAML
	}
	return schemas.FormatJSON
}
