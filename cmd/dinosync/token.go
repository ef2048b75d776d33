package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mohsale1/dino-sync/internal/credentials"
)

// runToken issues a signed development token for local realtime servers.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	secret := fs.String("secret", os.Getenv("DINO_DEV_SECRET"), "HMAC signing secret")
	user := fs.String("user", "", "user id")
	venue := fs.String("venue", "", "venue id")
	workspace := fs.String("workspace", "", "workspace id")
	role := fs.String("role", "staff", "role")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		return errors.New("-secret or DINO_DEV_SECRET is required")
	}
	if *user == "" || *venue == "" {
		return errors.New("-user and -venue are required")
	}

	tok, err := credentials.Issue(*secret, credentials.Claims{
		UserID:      *user,
		VenueID:     *venue,
		WorkspaceID: *workspace,
		Role:        *role,
	}, time.Now(), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}
