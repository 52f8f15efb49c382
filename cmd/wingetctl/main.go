// wingetctl provisions tenants, packages, versions and installers of a
// wingetpro source. It talks to the database directly and writes installer
// binaries to MEDIA_ROOT, so it must run next to the server.
//
// Usage:
//
//	wingetctl tenant create --name "Acme Corp" --password secret
//	wingetctl package create --tenant ID --identifier Acme.Tool --name "Acme Tool" --publisher Acme --description "..."
//	wingetctl version create --tenant ID --package Acme.Tool --version 1.2.0
//	wingetctl installer add --tenant ID --package Acme.Tool --version 1.2.0 --arch x64 --type msi --file setup.msi
//	wingetctl installer verify --tenant ID --id 7
//	wingetctl token --tenant ID
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xelth-com/wingetpro/internal/blob"
	"github.com/xelth-com/wingetpro/internal/buildinfo"
	"github.com/xelth-com/wingetpro/internal/config"
	"github.com/xelth-com/wingetpro/internal/database"
	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/logging"
	"github.com/xelth-com/wingetpro/internal/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		fmt.Fprint(out, usage)
		return nil
	}
	if args[0] == "--version" {
		fmt.Fprintf(out, "wingetctl %s\n", buildinfo.String())
		return nil
	}

	logger, err := logging.New("production", getenv("LOG_LEVEL", "warn"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.Connect(config.LoadDatabase(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db.DB)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	media := config.LoadMedia()
	blobs, err := blob.NewFileStore(media.Root, media.URL, logger)
	if err != nil {
		return err
	}

	a := &app{
		store:      st,
		installers: installers.NewService(st, blobs, nil, logger),
		out:        out,
		jwtSecret:  os.Getenv("JWT_SECRET"),
	}
	return a.dispatch(context.Background(), args)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

const usage = `wingetctl - provision a wingetpro package source

Commands:
  tenant create      --name NAME [--password PASSWORD]
  tenant password    --tenant ID --password PASSWORD
  package create     --tenant ID --identifier ID --name NAME --publisher NAME --description TEXT
  version create     --tenant ID --package IDENTIFIER [--version VERSION]
  installer add      --tenant ID --package IDENTIFIER [--version VERSION] --arch ARCH --type TYPE [--scope SCOPE] --file PATH
  installer replace  --tenant ID --id INSTALLER_ID --file PATH
  installer verify   --tenant ID --id INSTALLER_ID
  token              --tenant ID [--ttl DURATION]

The database is configured through PG_* variables, installer storage
through MEDIA_ROOT and MEDIA_URL, and tokens are signed with JWT_SECRET.
`
