// Package fhqueue runs the background work the delivery daemon defers:
// queued payload removals and moves, expired-token purges, transfer
// ledger sweeps, and the orphaned-payload scan.
package fhqueue

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/jlaffaye/ftp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const payloadDialTimeout = 30 * time.Second

// Remove deletes the payload at relPath from server. Missing payloads
// are not an error; the row may outlive the bytes.
func Remove(ctx context.Context, server *model.StorageServer, relPath string) error {
	switch server.Kind {
	case model.ServerKindLocal, model.ServerKindDirect:
		full := fullLocalPath(server, relPath)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", full)
		}
		return nil

	case model.ServerKindFTP:
		conn, err := dialFTP(ctx, server)
		if err != nil {
			return err
		}
		defer func() {
			_ = conn.Quit()
		}()

		if err := conn.Delete(remotePath(server, relPath)); err != nil {
			return errors.Wrapf(err, "ftp delete %s on %s", relPath, server.Host)
		}
		return nil

	case model.ServerKindSFTP:
		client, conn, err := dialSFTP(server)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
			_ = conn.Close()
		}()

		if err := client.Remove(remotePath(server, relPath)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "sftp remove %s on %s", relPath, server.Host)
		}
		return nil

	case model.ServerKindObject:
		client, err := objectClient(server)
		if err != nil {
			return err
		}

		err = client.RemoveObject(ctx, server.Bucket, objectKey(server, relPath), minio.RemoveObjectOptions{})
		return errors.Wrapf(err, "remove object %s", relPath)

	default:
		return fmt.Errorf("unknown storage kind %q on server %d", server.Kind, server.ID)
	}
}

// Store writes size bytes from src to relPath on server, creating parent
// directories as needed.
func Store(ctx context.Context, server *model.StorageServer, relPath string, src io.Reader, size int64) error {
	switch server.Kind {
	case model.ServerKindLocal, model.ServerKindDirect:
		full := fullLocalPath(server, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return errors.Wrapf(err, "mkdir for %s", full)
		}

		out, err := os.Create(full)
		if err != nil {
			return errors.Wrapf(err, "create %s", full)
		}
		if _, err := io.Copy(out, src); err != nil {
			_ = out.Close()
			return errors.Wrapf(err, "write %s", full)
		}
		return out.Close()

	case model.ServerKindFTP:
		conn, err := dialFTP(ctx, server)
		if err != nil {
			return err
		}
		defer func() {
			_ = conn.Quit()
		}()

		if err := conn.Stor(remotePath(server, relPath), src); err != nil {
			return errors.Wrapf(err, "ftp store %s on %s", relPath, server.Host)
		}
		return nil

	case model.ServerKindSFTP:
		client, conn, err := dialSFTP(server)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
			_ = conn.Close()
		}()

		remote := remotePath(server, relPath)
		if err := client.MkdirAll(filepath.Dir(remote)); err != nil {
			return errors.Wrapf(err, "sftp mkdir for %s on %s", relPath, server.Host)
		}

		out, err := client.Create(remote)
		if err != nil {
			return errors.Wrapf(err, "sftp create %s on %s", relPath, server.Host)
		}
		if _, err := io.Copy(out, src); err != nil {
			_ = out.Close()
			return errors.Wrapf(err, "sftp write %s on %s", relPath, server.Host)
		}
		return out.Close()

	case model.ServerKindObject:
		client, err := objectClient(server)
		if err != nil {
			return err
		}

		_, err = client.PutObject(ctx, server.Bucket, objectKey(server, relPath), src, size, minio.PutObjectOptions{})
		return errors.Wrapf(err, "put object %s", relPath)

	default:
		return fmt.Errorf("unknown storage kind %q on server %d", server.Kind, server.ID)
	}
}

func fullLocalPath(server *model.StorageServer, relPath string) string {
	base := server.DocRoot
	if server.StoragePath != "" {
		base = filepath.Join(base, server.StoragePath)
	}

	return filepath.Join(base, relPath)
}

func remotePath(server *model.StorageServer, relPath string) string {
	if server.StoragePath == "" {
		return relPath
	}

	return filepath.Join(server.StoragePath, relPath)
}

func objectKey(server *model.StorageServer, relPath string) string {
	return strings.TrimPrefix(remotePath(server, relPath), "/")
}

func dialFTP(ctx context.Context, server *model.StorageServer) (*ftp.ServerConn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(payloadDialTimeout),
	}
	if !server.PassiveMode {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", server.Host, server.Port), opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", server.Host)
	}

	if err := conn.Login(server.Username, server.Password); err != nil {
		_ = conn.Quit()
		return nil, errors.Wrapf(err, "login to %s", server.Host)
	}

	return conn, nil
}

func dialSFTP(server *model.StorageServer) (*sftp.Client, *ssh.Client, error) {
	sshConfig := &ssh.ClientConfig{
		User: server.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(server.Password),
		},
		// Same key handling as the delivery backends: provisioned hosts
		// on a private network.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         payloadDialTimeout,
	}

	conn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", server.Host, server.Port), sshConfig)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "ssh dial %s", server.Host)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrapf(err, "sftp session on %s", server.Host)
	}

	return client, conn, nil
}

func objectClient(server *model.StorageServer) (*minio.Client, error) {
	endpoint := server.Host
	if server.Port != 0 {
		endpoint = fmt.Sprintf("%s:%d", server.Host, server.Port)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(server.Username, server.Password, ""),
		Secure: server.UseSSL,
	})

	return client, errors.Wrapf(err, "object client for %s", endpoint)
}
