// Command inspect dumps the contents of a dm-lab badger store as tables and mints
// development tokens. It opens the store read-only, so it can run next to a live server.
package main

import (
	"dm-lab/auth"
	"dm-lab/repositories"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BadgerFilepath    string        `envconfig:"BADGER_FILEPATH" required:"true"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	AuthTokenDuration time.Duration `envconfig:"AUTH_TOKEN_DURATION" default:"24h"`
	// INSPECT_COLOURS disables colorized output when false
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	names := make([]string, 0, len(repositories.Collections()))
	for _, c := range repositories.Collections() {
		names = append(names, string(c))
	}
	collection := flag.String("collection", string(repositories.CollectionConversations),
		"Collection to dump: "+strings.Join(names, ", "))
	limit := flag.Int("limit", 100, "Maximum number of rows, 0 for all")
	mint := flag.String("mint", "", "Print a bearer token for this user id instead of dumping")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatal("Config error: ", err)
	}
	color.Enable = config.Colours

	if *mint != "" {
		if config.JWTSecret == "" {
			log.Fatal("JWT_SECRET is required to mint a token")
		}
		token, err := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration).GenerateToken(*mint)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(token)
		return
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer func() { _ = db.Close() }()

	color.New(color.FgCyan, color.OpBold).Printf("%s (%s)\n", *collection, config.BadgerFilepath)
	rows, err := render(os.Stdout, db, repositories.Collection(*collection), *limit)
	if err != nil {
		log.Fatal(err)
	}
	color.Gray.Printf("%d row(s)\n", rows)
}
