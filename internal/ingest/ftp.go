package ingest

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// FTPFetcher downloads daily exports from the metering provider's FTP drop.
type FTPFetcher struct {
	addr     string
	user     string
	password string
	dir      string
}

func NewFTPFetcher(addr, user, password, dir string) *FTPFetcher {
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	if dir == "" {
		dir = "/"
	}
	return &FTPFetcher{addr: addr, user: user, password: password, dir: dir}
}

// Fetch copies every export in the remote directory into dest and returns
// how many files were written. Existing files in dest are overwritten.
func (f *FTPFetcher) Fetch(dest string) (int, error) {
	if f.addr == "" {
		return 0, fmt.Errorf("ftp: no server address configured")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	var conn *ftp.ServerConn
	operation := func() error {
		c, err := ftp.Dial(f.addr, ftp.DialWithTimeout(30*time.Second))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		if err := c.Login(f.user, f.password); err != nil {
			c.Quit()
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}
		conn = c
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return 0, err
	}
	defer conn.Quit()

	entries, err := conn.List(f.dir)
	if err != nil {
		return 0, fmt.Errorf("ftp list %s: %w", f.dir, err)
	}

	var fetched int
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile || !isExportFile(e.Name) {
			continue
		}
		if err := f.retrieve(conn, e.Name, dest); err != nil {
			return fetched, err
		}
		fetched++
	}

	log.Printf("fetch: downloaded %d exports from %s%s", fetched, f.addr, f.dir)
	return fetched, nil
}

func (f *FTPFetcher) retrieve(conn *ftp.ServerConn, name, dest string) error {
	resp, err := conn.Retr(path.Join(f.dir, name))
	if err != nil {
		return fmt.Errorf("ftp retr %s: %w", name, err)
	}
	defer resp.Close()

	out, err := os.Create(filepath.Join(dest, filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(out, resp); err != nil {
		out.Close()
		return fmt.Errorf("download %s: %w", name, err)
	}
	return out.Close()
}

func isExportFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
