package delivery

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const sftpDialTimeout = 30 * time.Second

// SFTPBackend reads payloads over SFTP. SFTP handles are seekable so
// ranged reads need no server-side support beyond the protocol itself.
type SFTPBackend struct {
	server *model.StorageServer
}

func NewSFTPBackend(server *model.StorageServer) *SFTPBackend {
	return &SFTPBackend{server: server}
}

func (b *SFTPBackend) Open(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	sshConfig := &ssh.ClientConfig{
		User: b.server.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(b.server.Password),
		},
		// Storage servers are provisioned hosts on a private network; key
		// pinning is handled at deploy time.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sftpDialTimeout,
	}

	sshConn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", b.server.Host, b.server.Port), sshConfig)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "ssh dial %s: %s", b.server.Host, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, errors.Wrapf(ErrBackendUnavailable, "sftp session on %s: %s", b.server.Host, err)
	}

	f, err := client.Open(path)
	if err != nil {
		_ = client.Close()
		_ = sshConn.Close()
		return nil, errors.Wrapf(ErrBackendUnavailable, "open %s on %s: %s", path, b.server.Host, err)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			_ = client.Close()
			_ = sshConn.Close()
			return nil, errors.Wrapf(ErrBackendUnavailable, "seek %s to %d: %s", path, offset, err)
		}
	}

	return &sftpStream{file: f, client: client, conn: sshConn}, nil
}

type sftpStream struct {
	file   *sftp.File
	client *sftp.Client
	conn   *ssh.Client
}

func (s *sftpStream) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

func (s *sftpStream) Close() error {
	err := s.file.Close()
	_ = s.client.Close()
	_ = s.conn.Close()

	return err
}
