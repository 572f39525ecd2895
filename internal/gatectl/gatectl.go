// Package gatectl implements the operator tool for gophgate: hashing
// passwords for seeding identity stores, generating signing keys and
// minting tokens for debugging.
package gatectl

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/dmitrijs2005/gophgate/internal/server/auth"
	"golang.org/x/crypto/bcrypt"
)

const usage = `usage: gatectl <command> [flags]

commands:
  hash     print a password hash (bcrypt, or argon2id with -argon2)
  genkey   print a random signing key
  token    issue a token for a subject id
`

var errUsage = errors.New("usage")

// App holds the streams the commands talk to.
type App struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewApp(stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{stdin: stdin, stdout: stdout, stderr: stderr, now: auth.SystemClock}
}

// Run executes one command and returns the process exit code.
func (a *App) Run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "hash":
		err = a.hash(args[1:])
	case "genkey":
		err = a.genkey()
	case "token":
		err = a.token(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return 0
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintln(a.stderr, "error:", err)
		return 1
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *App) readSecret() ([]byte, error) {
	if !isTerminal() {
		return readLine(a.stdin)
	}

	pw, err := GetPassword(a.stderr, "Enter password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := GetPassword(a.stderr, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		common.WipeByteArray(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func (a *App) hash(args []string) error {
	fs := a.flagSet("hash")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	useArgon := fs.Bool("argon2", false, "produce an argon2id hash instead of bcrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := a.readSecret()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if len(pw) == 0 {
		return errors.New("empty password")
	}

	var hasher auth.Hasher = auth.BcryptHasher{Cost: *cost}
	if *useArgon {
		hasher = auth.DefaultArgon2Hasher()
	}

	h, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, h)
	return nil
}

func (a *App) genkey() error {
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, string(key))
	return nil
}

func (a *App) token(args []string) error {
	fs := a.flagSet("token")
	key := fs.String("key", os.Getenv("GATE_SECRET_KEY"), "signing key (default $GATE_SECRET_KEY)")
	keyFile := fs.String("key-file", "", "file holding the signing key")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "usage: gatectl token [-key k | -key-file f] [-ttl d] <subject-id>")
		return errUsage
	}

	secret := []byte(*key)
	if *keyFile != "" {
		k, err := auth.LoadKeyFile(*keyFile)
		if err != nil {
			return err
		}
		secret = k
	}

	ring, err := auth.NewKeyRing(secret)
	if err != nil {
		return err
	}

	tok, err := auth.NewTokenService(ring, *ttl, a.now).Issue(fs.Arg(0), a.now())
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, tok.Value)
	return nil
}
