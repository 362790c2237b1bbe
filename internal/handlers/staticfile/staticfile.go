// Package staticfile serves one file per connection from a document root.
package staticfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"example.com/minihttpd/internal/config"
	"example.com/minihttpd/internal/logger"
	"example.com/minihttpd/internal/request"
	"example.com/minihttpd/internal/server"
)

// ResolvedFile is the metadata of the path a request maps to.
type ResolvedFile struct {
	FilesystemPath string // slash-separated path relative to the document root, "." for the root
	Size           int64
	IsRegular      bool
}

// StaticFileServer implements server.Handler.
type StaticFileServer struct {
	fs             billy.Basic
	root           string
	readBufferSize int
	chunkSize      int
	mime           *MimeTypeResolver
	log            *logger.Logger
}

var _ server.Handler = (*StaticFileServer)(nil)

// NewFilesystem opens documentRoot as a filesystem bound to that directory:
// neither ".." nor symlinks can reach outside it. Path deduplication is off
// so a request naming the absolute root is looked up below the root.
func NewFilesystem(documentRoot string) (billy.Filesystem, error) {
	abs, err := filepath.Abs(documentRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document root %s: %w", documentRoot, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("document root %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("document root %s is not a directory", abs)
	}
	return osfs.New(abs, osfs.WithBoundOS(), osfs.WithDeduplicatePath(false)), nil
}

// New creates a StaticFileServer serving files from fs. cfg must already be defaulted.
func New(cfg *config.StaticFileServerConfig, fs billy.Basic, lg *logger.Logger) (*StaticFileServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("staticfile: config cannot be nil")
	}
	if fs == nil {
		return nil, fmt.Errorf("staticfile: filesystem cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("staticfile: logger cannot be nil")
	}

	readBufferSize := config.DefaultReadBufferSize
	if cfg.ReadBufferSize != nil {
		readBufferSize = *cfg.ReadBufferSize
	}
	chunkSize := config.DefaultChunkSize
	if cfg.ChunkSize != nil {
		chunkSize = *cfg.ChunkSize
	}
	if readBufferSize <= 0 || chunkSize <= 0 {
		return nil, fmt.Errorf("staticfile: buffer sizes must be positive (read=%d, chunk=%d)", readBufferSize, chunkSize)
	}

	return &StaticFileServer{
		fs:             fs,
		root:           cfg.DocumentRoot,
		readBufferSize: readBufferSize,
		chunkSize:      chunkSize,
		mime:           NewMimeTypeResolver(cfg.MimeTypes),
		log:            lg,
	}, nil
}

// ServeConn reads one request from conn and writes at most one response.
// It returns an error only when the request was abandoned without a
// response (read failure) or a write failed part-way.
func (s *StaticFileServer) ServeConn(ctx context.Context, conn net.Conn) error {
	start := time.Now()
	entry := logger.AccessEntry{RemoteAddr: remoteAddr(conn)}
	defer func() {
		entry.Duration = time.Since(start)
		s.log.Access(entry)
	}()

	raw, err := request.ReadRaw(conn, s.readBufferSize)
	if err != nil {
		if errors.Is(err, request.ErrEmptyRequest) {
			s.log.Debug("Peer closed without sending a request", logger.LogFields{"remote_addr": entry.RemoteAddr})
			return nil
		}
		return fmt.Errorf("reading request: %w", err)
	}
	s.log.Info("Request received", logger.LogFields{"remote_addr": entry.RemoteAddr, "raw_request": string(raw)})

	req, err := request.Parse(raw, s.readBufferSize)
	if errors.Is(err, request.ErrRequestLineTooLong) {
		s.log.Warn("Request line exceeds read buffer", logger.LogFields{"limit": humanize.Bytes(uint64(s.readBufferSize))})
		return s.respond(conn, server.BadRequest(), &entry)
	}
	if err != nil {
		s.log.Info("Dropping connection without response", logger.LogFields{"remote_addr": entry.RemoteAddr, "error": err.Error()})
		return nil
	}
	entry.Method, entry.Path = req.Method, req.Path

	rf, err := s.resolve(req.Path)
	if err != nil {
		s.log.Debug("Stat failed", logger.LogFields{"path": req.Path, "error": err.Error()})
		return s.respond(conn, server.NotFound(), &entry)
	}
	if !rf.IsRegular {
		return s.respond(conn, server.Forbidden(), &entry)
	}
	return s.serveFile(conn, rf, &entry)
}

// resolve walks rawPath one component at a time below the document root.
// Every component followed by another one must be an existing directory,
// so "file/", "file/." and "missing/../file" do not resolve. ".." never
// climbs above the root.
func (s *StaticFileServer) resolve(rawPath string) (*ResolvedFile, error) {
	var cur []string
	for i, part := range strings.Split(rawPath, "/") {
		if i > 0 && len(cur) > 0 {
			if err := s.statDir(strings.Join(cur, "/")); err != nil {
				return nil, err
			}
		}
		switch part {
		case "", ".":
		case "..":
			if len(cur) > 0 {
				cur = cur[:len(cur)-1]
			}
		default:
			cur = append(cur, part)
		}
	}

	name := "."
	if len(cur) > 0 {
		name = strings.Join(cur, "/")
	}
	fi, err := s.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	return &ResolvedFile{
		FilesystemPath: name,
		Size:           fi.Size(),
		IsRegular:      fi.Mode().IsRegular(),
	}, nil
}

func (s *StaticFileServer) statDir(name string) error {
	fi, err := s.fs.Stat(name)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &os.PathError{Op: "stat", Path: name, Err: syscall.ENOTDIR}
	}
	return nil
}

func (s *StaticFileServer) serveFile(conn net.Conn, rf *ResolvedFile, entry *logger.AccessEntry) error {
	f, err := s.fs.Open(rf.FilesystemPath)
	if err != nil {
		s.log.Warn("Failed to open file", logger.LogFields{"file": s.displayPath(rf), "error": err.Error()})
		return s.respond(conn, server.InternalServerError(), entry)
	}
	defer f.Close()

	resp := server.OK(s.mime.ContentType(rf.FilesystemPath), rf.Size)
	if err := s.respond(conn, resp, entry); err != nil {
		return err
	}

	buf := make([]byte, s.chunkSize)
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			w, werr := conn.Write(buf[:n])
			sent += int64(w)
			entry.ResponseBytes += int64(w)
			if werr != nil {
				return fmt.Errorf("writing body of %s after %d bytes: %w", rf.FilesystemPath, sent, werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("reading %s after %d bytes: %w", rf.FilesystemPath, sent, rerr)
		}
	}

	if sent != rf.Size {
		s.log.Warn("File changed size while streaming", logger.LogFields{"file": s.displayPath(rf), "content_length": rf.Size, "sent": sent})
	}
	s.log.Debug("File served", logger.LogFields{"file": s.displayPath(rf), "size": humanize.Bytes(uint64(sent))})
	return nil
}

// respond writes a complete preamble (plus any fixed body) and records it.
func (s *StaticFileServer) respond(conn net.Conn, resp *server.Response, entry *logger.AccessEntry) error {
	entry.Status = resp.StatusCode
	s.log.Info("Response sent", logger.LogFields{"remote_addr": entry.RemoteAddr, "preamble": string(resp.Preamble())})
	n, err := resp.WriteTo(conn)
	entry.ResponseBytes += n
	if err != nil {
		return fmt.Errorf("writing %d response: %w", resp.StatusCode, err)
	}
	return nil
}

func (s *StaticFileServer) displayPath(rf *ResolvedFile) string {
	return filepath.Join(s.root, filepath.FromSlash(rf.FilesystemPath))
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
