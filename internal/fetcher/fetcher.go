// Package fetcher opens export files from local disk, HTTP(S), or FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote source.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Options configures an Opener.
type Options struct {
	HTTP HTTPOptions
	FTP  FTPOptions
}

// Opener resolves a source string to a reader, dispatching on URL scheme.
type Opener struct {
	http Fetcher
	ftp  Fetcher
}

// New creates an Opener with HTTP and FTP fetchers built from opts.
func New(opts Options) *Opener {
	return &Opener{
		http: NewHTTPFetcher(opts.HTTP),
		ftp:  NewFTPFetcher(opts.FTP),
	}
}

// Open returns a reader for source. Sources with an http, https, or ftp
// scheme are downloaded; anything else is treated as a local path.
func (o *Opener) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch scheme(source) {
	case "http", "https":
		zap.L().Debug("fetcher: downloading", zap.String("url", source))
		return o.http.Download(ctx, source)
	case "ftp":
		zap.L().Debug("fetcher: ftp download", zap.String("url", redact(source)))
		return o.ftp.Download(ctx, source)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", source)
		}
		return f, nil
	}
}

// Name returns the file name component of source, used for import history.
func Name(source string) string {
	if s := scheme(source); s != "" {
		if u, err := url.Parse(source); err == nil {
			return filepath.Base(u.Path)
		}
	}
	return filepath.Base(source)
}

func scheme(source string) string {
	i := strings.Index(source, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(source[:i])
}

// redact strips userinfo so credentials never reach the logs.
func redact(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return source
	}
	return u.Redacted()
}
