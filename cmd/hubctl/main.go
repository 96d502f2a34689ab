// Command hubctl administers a stopped hub: user accounts, test tokens and a raw key dump.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"smartsolve/auth"
	"smartsolve/domain"
	"smartsolve/internal"
	"smartsolve/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	JWTIssuer      string `envconfig:"JWT_ISSUER"`
	// HUBCTL_COLOURS enables colorized output
	Colours bool `envconfig:"HUBCTL_COLOURS" default:"true"`
}

const usage = `usage:
  hubctl user add <id> [-username name] [-role role]
  hubctl user ban <id>
  hubctl user unban <id>
  hubctl user list
  hubctl token <id> [-ttl 24h] [-roles a,b]
  hubctl inspect [prefix]`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("%s", usage)
	}

	switch args[0] {
	case "user":
		return runUser(config, args[1:], out)
	case "token":
		return runToken(config, args[1:], out)
	case "inspect":
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		return runInspect(config, prefix, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runUser(config Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", usage)
	}
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	users := repositories.NewUserRepository(db)
	ctx := context.Background()

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("user add", flag.ContinueOnError)
		username := fs.String("username", "", "display name")
		role := fs.String("role", "user", "role")
		if len(args) < 2 {
			return fmt.Errorf("user add needs an id")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		user := repositories.User{ID: domain.UserID(args[1]), Username: *username, Role: *role}
		if err := users.Save(ctx, user); err != nil {
			return err
		}
		fmt.Fprintln(out, paint(config, color.FgGreen, "created "+args[1]))
		return nil
	case "ban", "unban":
		if len(args) < 2 {
			return fmt.Errorf("user %s needs an id", args[0])
		}
		user, err := users.SetBanned(ctx, domain.UserID(args[1]), args[0] == "ban")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, paint(config, color.FgYellow, fmt.Sprintf("%s banned=%t", user.ID, user.Banned)))
		return nil
	case "list":
		all, err := users.List(ctx)
		if err != nil {
			return err
		}
		table := newTable(out, []string{"ID", "Username", "Role", "Status", "Created"})
		for _, u := range all {
			status := paint(config, color.FgGreen, "active")
			if u.Banned {
				status = paint(config, color.FgRed, "banned")
			}
			table.Append([]string{u.ID.String(), u.Username, u.Role, status, u.CreatedAt.Format(time.RFC3339)})
		}
		table.Render()
		fmt.Fprintf(out, "%d users, %d active\n", len(all), len(repositories.ActiveIDs(all)))
		return nil
	default:
		return fmt.Errorf("unknown user command %q\n%s", args[0], usage)
	}
}

func runToken(config Config, args []string, out io.Writer) error {
	if config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to issue a token")
	}
	if len(args) == 0 {
		return fmt.Errorf("token needs a user id")
	}
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	roles := fs.String("roles", "user", "comma separated roles")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	token, err := auth.NewJWTVerifier(config.JWTSecret, config.JWTIssuer).
		Issue(domain.UserID(args[0]), strings.Split(*roles, ","), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runInspect(config Config, prefix string, out io.Writer) error {
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	table := newTable(out, []string{"Key", "Type", "Timestamp", "Entity ID", "Namespace", "Detail"})
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			row := internal.DefaultMapper(string(item.Key()), item.ValueSize())
			table.Append([]string{row.Key, row.Type, row.Timestamp, row.EntityID, row.Namespace, row.Detail})
		}
		return nil
	})
	if err != nil {
		return err
	}
	table.Render()
	return nil
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func paint(config Config, c color.Color, s string) string {
	if !config.Colours {
		return s
	}
	return c.Render(s)
}
