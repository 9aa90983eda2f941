package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/matheus3301/smartcart/internal/app"
	"github.com/matheus3301/smartcart/internal/auth"
	"github.com/matheus3301/smartcart/internal/model"
	"golang.org/x/term"
)

func cmdRegister(ctx context.Context, a app.App, out *output, args []string) error {
	return signIn(ctx, a, out, args, "register", a.Client.Register)
}

func cmdLogin(ctx context.Context, a app.App, out *output, args []string) error {
	return signIn(ctx, a, out, args, "login", a.Client.Login)
}

func signIn(ctx context.Context, a app.App, out *output, args []string, name string, fn func(context.Context, auth.Credentials) (auth.Session, error)) error {
	if len(args) != 1 {
		return usage(name)
	}
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	s, err := fn(ctx, auth.Credentials{Email: strings.TrimSpace(args[0]), Password: password})
	if err != nil {
		return err
	}

	// Changes made before the token expired can go out now.
	stats := a.Sync.SyncPendingChanges(ctx)
	out.emit(s, func() {
		fmt.Printf("Signed in as %s\n", s.Email)
		if stats.Synced > 0 {
			fmt.Printf("Synced %d queued change(s)\n", stats.Synced)
		}
	})
	return nil
}

// readPassword prompts on a terminal and reads one line from stdin otherwise.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func cmdLogout(ctx context.Context, a app.App, out *output, _ []string) error {
	if err := a.Client.Logout(ctx); err != nil {
		return err
	}
	out.emit(map[string]bool{"signed_out": true}, func() { fmt.Println("Signed out") })
	return nil
}

type statusReport struct {
	Online     bool        `json:"online"`
	UserID     string      `json:"user_id,omitempty"`
	Queued     int         `json:"queued"`
	ActiveTrip *model.Trip `json:"active_trip,omitempty"`
}

func cmdStatus(ctx context.Context, a app.App, out *output, _ []string) error {
	r := statusReport{Online: a.Monitor.Online()}

	user, err := a.Client.CurrentUser(ctx)
	switch {
	case err == nil:
		r.UserID = user
	case !errors.Is(err, model.ErrNotAuthenticated):
		return err
	}
	if r.Queued, err = a.Sync.QueueSize(ctx); err != nil {
		return err
	}
	if r.UserID != "" {
		active, err := a.Trips.GetActive(ctx)
		if err != nil && !errors.Is(err, model.ErrNoCachedData) {
			return err
		}
		r.ActiveTrip = active
	}

	out.emit(r, func() {
		conn := "offline"
		if r.Online {
			conn = "online"
		}
		fmt.Printf("Backend: %s\n", conn)
		if r.UserID == "" {
			fmt.Println("Account: not signed in")
		} else {
			fmt.Printf("Account: %s\n", r.UserID)
		}
		fmt.Printf("Queued:  %d change(s)\n", r.Queued)
		if r.ActiveTrip != nil {
			fmt.Printf("Active:  %s (%s)\n", r.ActiveTrip.Name, pending(r.ActiveTrip.ID))
		}
	})
	return nil
}
