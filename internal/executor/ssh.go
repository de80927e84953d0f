package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/time/rate"

	"github.com/andrej220/confaudit/internal/lg"
	pc "github.com/andrej220/confaudit/internal/processor"
	ex "github.com/andrej220/confaudit/pkg/executor"
)

const (
	termType   = "vt100"
	termWidth  = 511
	termHeight = 24
)

// SSHTransport opens interactive PTY shells on network devices.
type SSHTransport struct {
	opts     ex.SSHOptions
	prompt   *regexp.Regexp
	hostKeys ssh.HostKeyCallback
	limiter  *rate.Limiter
	logger   lg.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ ex.Transport = (*SSHTransport)(nil)

func NewSSHTransport(opts ex.SSHOptions, prompt *regexp.Regexp, logger lg.Logger) (*SSHTransport, error) {
	hostKeys := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known hosts %s: %w", opts.KnownHostsFile, err)
		}
		hostKeys = cb
	}
	t := &SSHTransport{
		opts:     opts,
		prompt:   prompt,
		hostKeys: hostKeys,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	if opts.ConnectRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.ConnectRate), 1)
	}
	return t, nil
}

func (t *SSHTransport) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(t.opts.Port))
}

// breaker returns the circuit breaker of one device address, creating it on
// first use. It lives as long as the transport.
func (t *SSHTransport) breaker(addr string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.breakers[addr]
	if !ok {
		cb = ex.NewBreaker("ssh:" + addr)
		t.breakers[addr] = cb
	}
	return cb
}

func (t *SSHTransport) Open(ctx context.Context, host string, creds ex.Credentials, timeouts ex.Timeouts) (ex.Session, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &ex.TransportError{Op: "connect", Host: host, Err: err}
		}
	}

	logger := t.logger.With(lg.String("host", host))
	config := &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = creds.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: t.hostKeys,
		Timeout:         timeouts.Connect,
		BannerCallback: func(message string) error {
			logger.Debug("ssh banner", lg.Int("bytes", len(message)))
			return nil
		},
	}

	addr := t.address(host)
	client, err := ex.NewResilientClient(ctx, addr, config, timeouts,
		ex.NewResilienceConfig(t.breaker(addr), t.opts.DialRetries))
	if err != nil {
		return nil, err
	}

	s, err := startShell(ctx, host, client, t.prompt, timeouts.Operation)
	if err != nil {
		client.Close()
		return nil, err
	}
	logger.Debug("shell ready")
	return s, nil
}

// shellSession is one PTY shell. A pump goroutine copies device output into
// buf; Send writes a command and waits until the prompt ends the buffer.
type shellSession struct {
	host      string
	client    ex.SSHClient
	sess      *ssh.Session
	stdin     io.WriteCloser
	prompt    *regexp.Regexp
	opTimeout time.Duration
	chain     *pc.ProcessorChain

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	notify  chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func startShell(ctx context.Context, host string, client ex.SSHClient, prompt *regexp.Regexp, opTimeout time.Duration) (*shellSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, &ex.TransportError{Op: "session", Host: host, Err: err}
	}
	fail := func(op string, err error) (*shellSession, error) {
		sess.Close()
		return nil, &ex.TransportError{Op: op, Host: host, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(termType, termHeight, termWidth, modes); err != nil {
		return fail("session", fmt.Errorf("request pty: %w", err))
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		return fail("session", fmt.Errorf("stdin pipe: %w", err))
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return fail("session", fmt.Errorf("stdout pipe: %w", err))
	}
	if err := sess.Shell(); err != nil {
		return fail("session", fmt.Errorf("start shell: %w", err))
	}

	s := &shellSession{
		host:      host,
		client:    client,
		sess:      sess,
		stdin:     stdin,
		prompt:    prompt,
		opTimeout: opTimeout,
		chain:     pc.NewProcessorChain(),
		notify:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
	go s.pump(stdout)

	if _, err := s.readUntilPrompt(ctx); err != nil {
		sess.Close()
		return nil, &ex.TransportError{Op: "session", Host: host, Err: fmt.Errorf("waiting for prompt: %w", err)}
	}
	return s, nil
}

func (s *shellSession) pump(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf.Write(chunk[:n])
		}
		if err != nil {
			s.readErr = err
		}
		s.mu.Unlock()

		select {
		case s.notify <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// atPrompt reports whether the last line of text is a CLI prompt.
func (s *shellSession) atPrompt(text string) bool {
	last := text[strings.LastIndex(text, "\n")+1:]
	last = strings.TrimRight(last, "\r")
	return strings.TrimSpace(last) != "" && s.prompt.MatchString(last)
}

func (s *shellSession) readUntilPrompt(ctx context.Context) (string, error) {
	timer := time.NewTimer(s.opTimeout)
	defer timer.Stop()
	for {
		s.mu.Lock()
		text := s.buf.String()
		if s.atPrompt(text) {
			s.buf.Reset()
			s.mu.Unlock()
			return text, nil
		}
		readErr := s.readErr
		s.mu.Unlock()

		if readErr != nil {
			if readErr == io.EOF {
				return text, ex.ErrSessionClosed
			}
			return text, readErr
		}

		select {
		case <-s.notify:
		case <-timer.C:
			return text, fmt.Errorf("no prompt after %s", s.opTimeout)
		case <-ctx.Done():
			return text, ctx.Err()
		case <-s.closed:
			return text, ex.ErrSessionClosed
		}
	}
}

func (s *shellSession) Send(ctx context.Context, command string) (string, error) {
	select {
	case <-s.closed:
		return "", &ex.TransportError{Op: "write", Host: s.host, Err: ex.ErrSessionClosed}
	default:
	}

	// drop anything the device printed unprompted
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()

	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		return "", &ex.TransportError{Op: "write", Host: s.host, Err: err}
	}
	raw, err := s.readUntilPrompt(ctx)
	if err != nil {
		return s.clean(raw, command), &ex.TransportError{Op: "read", Host: s.host, Err: err}
	}
	return s.clean(raw, command), nil
}

// clean strips carriage returns, the echoed command, and the trailing prompt.
func (s *shellSession) clean(raw, command string) string {
	lines, err := s.chain.Process(pc.SplitLines(raw), pc.ProcessorTypeStripCR)
	if err != nil || len(lines) == 0 {
		return ""
	}
	if s.atPrompt(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasSuffix(pc.Normalize(lines[0]), pc.Normalize(command)) {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func (s *shellSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.stdin.Close()
		s.sess.Close()
		err = s.client.Close()
	})
	return err
}
