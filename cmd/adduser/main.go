// Command adduser provisions a BeeRich account in the configured storage.
//
//	adduser -email alice@example.com [-password secret]
//
// Without -password the password is read from the terminal with echo off,
// or as the first line of standard input when it is not a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/patric-chuzhbe/beerich/internal/app"
	"github.com/patric-chuzhbe/beerich/internal/config"
	"github.com/patric-chuzhbe/beerich/internal/credentials"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("adduser", flag.ContinueOnError)
	flags.SetOutput(stdout)
	email := flags.String("email", "", "email of the new account")
	password := flags.String("password", "", "password of the new account; prompted for when empty")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errors.New("-email is required")
	}

	if *password == "" {
		var err error
		*password, err = readPassword(stdin, stdout)
		if err != nil {
			return err
		}
	}

	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if err != nil {
		return err
	}

	db, err := app.NewStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	verifier, err := credentials.New(db)
	if err != nil {
		return err
	}

	usr, err := verifier.Register(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("registering %s: %w", *email, err)
	}

	_, err = fmt.Fprintf(stdout, "created user %s <%s>\n", usr.ID, usr.Email)
	return err
}

func readPassword(stdin io.Reader, stdout io.Writer) (string, error) {
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(stdout, "Password: ")
		password, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(stdout)
		if err != nil {
			return "", fmt.Errorf("in cmd/adduser/main.go/readPassword(): error while `term.ReadPassword()` calling: %w", err)
		}
		return string(password), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("in cmd/adduser/main.go/readPassword(): error while `ReadString()` calling: %w", err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}
