package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

type SSHClient interface {
	NewSession() (*ssh.Session, error)
	Close() error
}

type ResilienceConfig struct {
	BackoffSettings *backoff.ExponentialBackOff
	// CircuitBreaker is shared by every connection to the same device, so
	// repeated entries of an unresponsive device fail fast.
	CircuitBreaker *gobreaker.CircuitBreaker
	// DialRetries is the number of extra dial attempts. Zero keeps one
	// attempt per device per run.
	DialRetries uint64
}

// BreakerThreshold is the number of consecutive failed connections after
// which a device's breaker opens.
const BreakerThreshold = 3

func BreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerThreshold
		},
		// a rejected login says nothing about the device being wedged
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAuth) || errors.Is(err, context.Canceled)
		},
	}
}

func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(BreakerSettings(name))
}

func NewResilienceConfig(cb *gobreaker.CircuitBreaker, dialRetries uint64) *ResilienceConfig {
	return &ResilienceConfig{
		BackoffSettings: &backoff.ExponentialBackOff{
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         5 * time.Second,
			Multiplier:          1.5,
			RandomizationFactor: 0.5,
			Stop:                backoff.Stop,
			Clock:               backoff.SystemClock,
		},
		CircuitBreaker: cb,
		DialRetries:    dialRetries,
	}
}

// ResilientSSHClient is an SSH connection to one device. Dialing and
// session creation go through the device's circuit breaker.
type ResilientSSHClient struct {
	SSHClient *ssh.Client
	ResConf   *ResilienceConfig
}

var _ SSHClient = (*ResilientSSHClient)(nil)

// NewResilientClient dials addr and completes the SSH handshake. The TCP
// connect is bounded by t.Connect; the version exchange and authentication
// together by t.Banner+t.Auth. Failed dials are retried with backoff up to
// resConf.DialRetries times; authentication failures are not retried. While
// the breaker is open no dial is attempted.
func NewResilientClient(ctx context.Context, addr string, config *ssh.ClientConfig, t Timeouts, resConf *ResilienceConfig) (*ResilientSSHClient, error) {
	var client *ssh.Client
	dial := func() error {
		c, err := dialSSH(ctx, addr, config, t)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				return backoff.Permanent(err)
			}
			return err
		}
		client = c
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(resConf.BackoffSettings, resConf.DialRetries), ctx)
	_, err := resConf.CircuitBreaker.Execute(func() (any, error) {
		return nil, backoff.Retry(dial, b)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: "connect", Host: hostOf(addr), Err: fmt.Errorf("%w after %d consecutive failures", err, BreakerThreshold)}
		}
		return nil, err
	}
	return &ResilientSSHClient{SSHClient: client, ResConf: resConf}, nil
}

func (c *ResilientSSHClient) NewSession() (*ssh.Session, error) {
	return newSSHSession(c.SSHClient, c.ResConf.CircuitBreaker)
}

func (c *ResilientSSHClient) Close() error {
	return c.SSHClient.Close()
}

// newSSHSession creates a new SSH session through the circuit breaker.
// The caller is responsible for closing the returned session.
func newSSHSession(client *ssh.Client, cb *gobreaker.CircuitBreaker) (*ssh.Session, error) {
	res, err := cb.Execute(func() (any, error) {
		return client.NewSession()
	})
	if err != nil {
		return nil, err
	}
	return res.(*ssh.Session), nil
}

func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig, t Timeouts) (*ssh.Client, error) {
	host := hostOf(addr)
	d := net.Dialer{Timeout: t.Connect}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "connect", Host: host, Err: err}
	}

	if handshake := t.Banner + t.Auth; handshake > 0 {
		_ = conn.SetDeadline(time.Now().Add(handshake))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, classifyHandshake(host, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func classifyHandshake(host string, err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return &TransportError{Op: "handshake", Host: host, Err: fmt.Errorf("timed out: %w", err)}
	case strings.Contains(err.Error(), "unable to authenticate"):
		return &TransportError{Op: "auth", Host: host, Err: fmt.Errorf("%w: %v", ErrAuth, err)}
	default:
		return &TransportError{Op: "handshake", Host: host, Err: err}
	}
}

func hostOf(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// SSHOptions configures the SSH transport for a whole run.
type SSHOptions struct {
	Port           int     `yaml:"port" json:"port" validate:"min=1,max=65535"`
	DialRetries    uint64  `yaml:"dialRetries" json:"dialRetries" validate:"lte=5"`
	ConnectRate    float64 `yaml:"connectRate" json:"connectRate" validate:"gte=0"`
	KnownHostsFile string  `yaml:"knownHostsFile" json:"knownHostsFile"`
}

func DefaultSSHOptions() SSHOptions {
	return SSHOptions{Port: 22}
}
