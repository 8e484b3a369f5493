package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/SmarTanom/sessionguard"
)

type command struct {
	summary string
	run     func(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error
}

var commandOrder = []string{
	"login",
	"logout",
	"whoami",
	"restore",
	"lockout",
	"register",
	"activate",
	"profile",
	"update-profile",
}

var commands = map[string]command{
	"login":          {summary: "sign in and persist the session", run: cmdLogin},
	"logout":         {summary: "clear the persisted session", run: cmdLogout},
	"whoami":         {summary: "print the persisted user", run: cmdWhoami},
	"restore":        {summary: "report whether a session can be restored", run: cmdRestore},
	"lockout":        {summary: "show or reset the lockout for an email", run: cmdLockout},
	"register":       {summary: "create an inactive account", run: cmdRegister},
	"activate":       {summary: "follow an activation link and sign in", run: cmdActivate},
	"profile":        {summary: "refresh the user from the backend", run: cmdProfile},
	"update-profile": {summary: "change profile fields locally", run: cmdUpdateProfile},
}

func cmdLogin(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password; SESSIONGUARD_PASSWORD is used when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("SESSIONGUARD_PASSWORD")
	}
	if *email == "" || *password == "" {
		return errors.New("login: -email and a password are required")
	}

	res, err := g.LoginWithResult(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s\n", res.User.Email)
	return nil
}

func cmdLogout(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	if _, err := g.RestoreSession(ctx); err != nil {
		return err
	}
	if err := g.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "signed out")
	return nil
}

func cmdWhoami(ctx context.Context, g *sessionguard.Guard, _ []string, out io.Writer) error {
	ok, err := g.RestoreSession(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return sessionguard.ErrNoSession
	}

	info := g.SessionInfo()
	view := struct {
		User           sessionguard.User `json:"user"`
		TokenExpiresAt *time.Time        `json:"token_expires_at,omitempty"`
	}{User: info.User}
	if !info.TokenExpiresAt.IsZero() {
		view.TokenExpiresAt = &info.TokenExpiresAt
	}
	return writeJSON(out, view)
}

func cmdRestore(ctx context.Context, g *sessionguard.Guard, _ []string, out io.Writer) error {
	ok, err := g.RestoreSession(ctx)
	if err != nil {
		return err
	}
	if ok {
		u, _ := g.CurrentUser()
		fmt.Fprintf(out, "session restored for %s\n", u.Email)
		return nil
	}
	fmt.Fprintln(out, "no session")
	return nil
}

func cmdLockout(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("lockout", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	reset := fs.Bool("reset", false, "clear the lockout record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("lockout: -email is required")
	}

	if *reset {
		if err := g.ResetLockout(ctx, *email); err != nil {
			return err
		}
		fmt.Fprintf(out, "lockout cleared for %s\n", *email)
		return nil
	}

	st, err := g.LockoutStatus(ctx, *email)
	if err != nil {
		return err
	}
	if st.Locked {
		fmt.Fprintf(out, "%s: locked, %d failed attempts, retry in %s\n",
			st.Email, st.Attempts, st.RetryAfter.Round(time.Minute))
		return nil
	}
	fmt.Fprintf(out, "%s: %d failed attempts, %d remaining\n", st.Email, st.Attempts, st.AttemptsRemaining)
	return nil
}

func cmdRegister(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req sessionguard.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Name, "name", "", "full name")
	fs.StringVar(&req.Password, "password", "", "password")
	fs.StringVar(&req.Contact, "contact", "", "contact number")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.Password2 = req.Password

	res, err := g.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered %s (id %d): %s\n", res.Email, res.UserID, res.Message)
	return nil
}

func cmdActivate(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("activate", flag.ContinueOnError)
	uid := fs.String("uid", "", "uid segment of the activation link")
	token := fs.String("token", "", "token segment of the activation link")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" || *token == "" {
		return errors.New("activate: -uid and -token are required")
	}

	u, err := g.Activate(ctx, *uid, *token)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "activated and signed in as %s\n", u.Email)
	return nil
}

func cmdProfile(ctx context.Context, g *sessionguard.Guard, _ []string, out io.Writer) error {
	if _, err := g.RestoreSession(ctx); err != nil {
		return err
	}
	u, err := g.FetchProfile(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, u)
}

func cmdUpdateProfile(ctx context.Context, g *sessionguard.Guard, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("update-profile", flag.ContinueOnError)
	name := fs.String("name", "", "new name")
	email := fs.String("email", "", "new email")
	contact := fs.String("contact", "", "new contact number")
	username := fs.String("username", "", "new username")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var update sessionguard.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			update.Name = name
		case "email":
			update.Email = email
		case "contact":
			update.Contact = contact
		case "username":
			update.Username = username
		}
	})

	if _, err := g.RestoreSession(ctx); err != nil {
		return err
	}
	u, err := g.UpdateUserProfile(ctx, update)
	if err != nil {
		return err
	}
	return writeJSON(out, u)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
