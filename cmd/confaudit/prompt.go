package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	ex "github.com/andrej220/confaudit/pkg/executor"
)

const (
	envUsername = "CONFAUDIT_USERNAME"
	envPassword = "CONFAUDIT_PASSWORD"
)

var errNoUsername = errors.New("username is required")

// prompter asks for credentials once per run. The secret is read with echo
// off when stdin is a terminal.
type prompter struct {
	in           *bufio.Reader
	out          io.Writer
	fd           int
	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)
	getenv       func(string) string
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{
		in:           bufio.NewReader(in),
		out:          out,
		fd:           -1,
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
		getenv:       os.Getenv,
	}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
	}
	return p
}

type credsResult struct {
	creds ex.Credentials
	err   error
}

// Credentials prompts until both values are known or ctx is cancelled. On
// cancellation it returns ex.ErrInterrupted without waiting for the pending
// read, and puts the terminal back into its original mode.
func (p *prompter) Credentials(ctx context.Context) (ex.Credentials, error) {
	var state *term.State
	if p.fd >= 0 && p.isTerminal(p.fd) {
		state, _ = term.GetState(p.fd)
	}

	done := make(chan credsResult, 1)
	go func() {
		creds, err := p.ask()
		done <- credsResult{creds, err}
	}()

	select {
	case r := <-done:
		return r.creds, r.err
	case <-ctx.Done():
		if state != nil {
			_ = term.Restore(p.fd, state)
		}
		fmt.Fprintln(p.out)
		return ex.Credentials{}, ex.ErrInterrupted
	}
}

func (p *prompter) ask() (ex.Credentials, error) {
	user := p.getenv(envUsername)
	if user == "" {
		fmt.Fprint(p.out, "Username: ")
		line, err := p.readLine()
		if err != nil {
			return ex.Credentials{}, err
		}
		user = line
	}
	if user == "" {
		return ex.Credentials{}, errNoUsername
	}

	secret := p.getenv(envPassword)
	if secret == "" {
		fmt.Fprint(p.out, "Password: ")
		if p.fd >= 0 && p.isTerminal(p.fd) {
			b, err := p.readPassword(p.fd)
			fmt.Fprintln(p.out)
			if err != nil {
				return ex.Credentials{}, fmt.Errorf("read password: %w", err)
			}
			secret = string(b)
		} else {
			line, err := p.readLine()
			if err != nil {
				return ex.Credentials{}, err
			}
			secret = line
		}
	}
	return ex.Credentials{Username: user, Password: secret}, nil
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
