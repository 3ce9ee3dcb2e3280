// Command seedctl checks seed catalogs and publishes them to object storage.
//
// Usage:
//
//	seedctl [-env-file .env] check FILE
//	seedctl [-env-file .env] push FILE s3://bucket/key
//	seedctl [-env-file .env] fetch s3://bucket/key
//
// push and fetch read the S3 settings (AWS_ENDPOINT_URL_S3, AWS_REGION, credentials)
// the server uses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kuitang/movieform/internal/catalog"
	"github.com/kuitang/movieform/internal/config"
	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/logutil"
	"github.com/kuitang/movieform/internal/movieform"
	"github.com/kuitang/movieform/internal/obs"
	"github.com/kuitang/movieform/internal/s3client"
)

const usage = `usage:
  seedctl [-env-file .env] check FILE
  seedctl [-env-file .env] push FILE s3://bucket/key
  seedctl [-env-file .env] fetch s3://bucket/key
`

func main() {
	obs.Init()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seedctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env-file", ".env", "Dotenv file to load if present")
	timeout := fs.Duration("timeout", 30*time.Second, "Timeout for S3 calls")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var err error
	switch cmd := rest[0]; {
	case cmd == "check" && len(rest) == 2:
		err = checkCmd(rest[1], stdout)
	case cmd == "push" && len(rest) == 3:
		err = pushCmd(ctx, *envFile, rest[1], rest[2], stdout)
	case cmd == "fetch" && len(rest) == 2:
		err = fetchCmd(ctx, *envFile, rest[1], stdout)
	default:
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "seedctl: %v\n", err)
		return 1
	}
	return 0
}

func checkCmd(path string, stdout io.Writer) error {
	records, _, err := readSeedFile(path)
	if err != nil {
		return err
	}
	printSummary(stdout, path, records)
	return nil
}

func pushCmd(ctx context.Context, envFile, path, dest string, stdout io.Writer) error {
	records, data, err := readSeedFile(path)
	if err != nil {
		return err
	}

	client, loc, err := clientFor(ctx, envFile, dest)
	if err != nil {
		return err
	}
	if err := client.PutObject(ctx, loc.Key, data, "application/json"); err != nil {
		return err
	}

	obs.Pkg("seedctl").Info("seed_pushed", "dest", dest, "movies", len(records), "bytes", len(data))
	printSummary(stdout, dest, records)
	return nil
}

func fetchCmd(ctx context.Context, envFile, source string, stdout io.Writer) error {
	client, _, err := clientFor(ctx, envFile, source)
	if err != nil {
		return err
	}
	records, err := catalog.LoadSeed(ctx, source, client)
	if err != nil {
		return err
	}
	printSummary(stdout, source, records)
	return nil
}

func readSeedFile(path string) ([]movieform.Record, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	records, err := catalog.ParseSeed(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %s", path, errs.MessageOf(err))
	}
	return records, data, nil
}

// clientFor builds an S3 client for the bucket named in uri using the server's
// configuration.
func clientFor(ctx context.Context, envFile, uri string) (*s3client.Client, s3client.Location, error) {
	loc, ok := s3client.ParseURI(uri)
	if !ok {
		return nil, s3client.Location{}, fmt.Errorf("%q is not an s3://bucket/key URI", uri)
	}
	cfg, err := config.LoadConfig(config.Flags{Seed: uri, EnvFile: envFile})
	if err != nil {
		return nil, s3client.Location{}, err
	}
	s3cfg, _ := cfg.S3Config()
	client, err := s3client.New(ctx, s3cfg)
	if err != nil {
		return nil, s3client.Location{}, err
	}
	return client, loc, nil
}

func printSummary(w io.Writer, source string, records []movieform.Record) {
	fmt.Fprintf(w, "%s: %d movies\n", source, len(records))
	for i, rec := range records {
		fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, logutil.TruncateForLog(rec.Title, 60), rec.ImdbID)
	}
}
