package health

import (
	"context"
	"fmt"
)

// Pinger is satisfied by database pools and clients that can probe their
// backend connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that pings a database connection. name appears
// as the check's key in the /readyz response.
func Database(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// SessionCounter is satisfied by the poll session registry.
type SessionCounter interface {
	Active() int
}

// SessionHeadroom returns a checker that fails when the poll session registry
// is at capacity: new generation tools would be rejected until a session
// finishes, so the instance should stop receiving work.
func SessionHeadroom(reg SessionCounter, max int) Checker {
	return Checker{
		Name: "poll_sessions",
		Check: func(context.Context) error {
			if active := reg.Active(); active >= max {
				return fmt.Errorf("at capacity: %d/%d sessions active", active, max)
			}
			return nil
		},
	}
}
