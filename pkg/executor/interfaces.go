package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Transport opens an authenticated interactive CLI session to one device.
// Implementations must be safe for concurrent use; every call returns a
// session owned exclusively by the caller.
type Transport interface {
	Open(ctx context.Context, host string, creds Credentials, timeouts Timeouts) (Session, error)
}

// Session is one interactive CLI channel. Send returns the text the device
// printed in response to command. Close is idempotent.
type Session interface {
	Send(ctx context.Context, command string) (string, error)
	Close() error
}

// Task is responsible for driving one device from open to teardown.
type Task[T any] interface {
	Execute(ctx context.Context) T
}

// Credentials are shared read-only by every device worker of a run.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string   { return fmt.Sprintf("{Username:%s Password:***}", c.Username) }
func (c Credentials) GoString() string { return c.String() }

// MarshalJSON keeps the secret out of reflective encoders such as zap.Any.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"username": c.Username, "password": "***"})
}

// Timeouts bound each phase of a session independently.
type Timeouts struct {
	Connect   time.Duration `yaml:"connect" json:"connect" validate:"gt=0"`
	Auth      time.Duration `yaml:"auth" json:"auth" validate:"gt=0"`
	Banner    time.Duration `yaml:"banner" json:"banner" validate:"gt=0"`
	Operation time.Duration `yaml:"operation" json:"operation" validate:"gt=0"`
}

func AuditTimeouts() Timeouts {
	return Timeouts{Connect: 60 * time.Second, Auth: 60 * time.Second, Banner: 60 * time.Second, Operation: 90 * time.Second}
}

func RemediationTimeouts() Timeouts {
	return Timeouts{Connect: 90 * time.Second, Auth: 90 * time.Second, Banner: 90 * time.Second, Operation: 120 * time.Second}
}

var (
	ErrSessionClosed = errors.New("session closed")
	ErrInterrupted   = errors.New("interrupted")
	ErrAuth          = errors.New("authentication failed")
)

// TransportError reports that the device could not be reached or the
// channel to it broke.
type TransportError struct {
	Op   string // connect, handshake, auth, session, read, write
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Host, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StepError reports that the device answered but refused or failed a step.
type StepError struct {
	Step   string
	Reason string
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Step, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
