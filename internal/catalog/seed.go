package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kuitang/movieform/internal/errs"
	"github.com/kuitang/movieform/internal/movieform"
	"github.com/kuitang/movieform/internal/obs"
	"github.com/kuitang/movieform/internal/s3client"
)

// ObjectGetter fetches a seed document from object storage.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	BucketName() string
}

// LoadSeed reads the seed catalog named by source.
//
// An empty source yields an empty catalog. "s3://bucket/key" is fetched through store,
// whose bucket must match. Anything else is read as a local file. The document is a JSON
// array of movies; every entry must have a title, imgUrl and imdbId.
func LoadSeed(ctx context.Context, source string, store ObjectGetter) ([]movieform.Record, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	var (
		data []byte
		err  error
	)
	if loc, ok := s3client.ParseURI(source); ok {
		if store == nil {
			return nil, errs.New(errs.Unavailable, "seed source "+source+" needs S3 configuration")
		}
		if store.BucketName() != loc.Bucket {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("seed bucket %q does not match configured bucket %q", loc.Bucket, store.BucketName()))
		}
		data, err = store.GetObject(ctx, loc.Key)
		if errors.Is(err, s3client.ErrObjectNotFound) {
			return nil, errs.Wrap(errs.NotFound, "seed object not found: "+source, err)
		}
	} else {
		data, err = os.ReadFile(source)
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.NotFound, "seed file not found: "+source, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed %s: %w", source, err)
	}

	records, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	obs.Pkg("catalog").Info("seed_loaded", "source", source, "movies", len(records))
	return records, nil
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(data []byte) ([]movieform.Record, error) {
	var records []movieform.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "seed is not a JSON array of movies", err)
	}
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("seed movie %d: %s", i, errs.MessageOf(err)), err)
		}
	}
	return records, nil
}
