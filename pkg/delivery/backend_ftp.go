package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
)

const ftpDialTimeout = 30 * time.Second

// FTPBackend streams payloads from an FTP storage server. Most servers
// support restarting a RETR at an offset, which gives us true range
// streaming. Some Windows-hosted servers do not stream reliably; for
// those the whole payload is fetched and sliced in memory.
type FTPBackend struct {
	server *model.StorageServer
}

func NewFTPBackend(server *model.StorageServer) *FTPBackend {
	return &FTPBackend{server: server}
}

func (b *FTPBackend) Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(ftpDialTimeout),
	}
	if !b.server.PassiveMode {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", b.server.Host, b.server.Port), opts...)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "connect to %s: %s", b.server.Host, err)
	}

	if err := conn.Login(b.server.Username, b.server.Password); err != nil {
		_ = conn.Quit()
		return nil, errors.Wrapf(ErrBackendUnavailable, "login to %s: %s", b.server.Host, err)
	}

	if b.server.WindowsServer {
		return b.openBuffered(conn, path, offset)
	}

	resp, err := conn.RetrFrom(path, uint64(offset))
	if err != nil {
		_ = conn.Quit()
		return nil, errors.Wrapf(ErrBackendUnavailable, "retrieve %s from %s: %s", path, b.server.Host, err)
	}

	return &ftpStream{resp: resp, conn: conn}, nil
}

// openBuffered pulls the entire payload before serving it. Limited
// streaming support only; the fallback for windows_alt style servers.
func (b *FTPBackend) openBuffered(conn *ftp.ServerConn, path string, offset int64) (io.ReadCloser, error) {
	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, errors.Wrapf(ErrBackendUnavailable, "retrieve %s from %s: %s", path, b.server.Host, err)
	}

	content, err := io.ReadAll(resp)
	_ = resp.Close()
	_ = conn.Quit()
	if err != nil {
		return nil, errors.Wrapf(ErrTransferIO, "buffering %s from %s: %s", path, b.server.Host, err)
	}

	if offset > int64(len(content)) {
		offset = int64(len(content))
	}

	return io.NopCloser(bytes.NewReader(content[offset:])), nil
}

// ftpStream ties the data connection and the control connection together
// so closing the stream also quits the session.
type ftpStream struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (s *ftpStream) Read(p []byte) (int, error) {
	return s.resp.Read(p)
}

func (s *ftpStream) Close() error {
	err := s.resp.Close()
	if quitErr := s.conn.Quit(); err == nil {
		err = quitErr
	}

	return err
}
