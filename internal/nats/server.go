// Package nats embeds a JetStream server that stores the build event log
// under the project's data directory.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mark3labs/agitegen/internal/logger"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled
// using the specified data directory for file-based storage.
// The server listens on no network port.
func StartEmbeddedNATS(dataDir string) (*server.Server, error) {
	logger.Debug("Starting embedded NATS server with data dir: %s", dataDir)

	opts := &server.Options{
		JetStream:  true,
		StoreDir:   dataDir,
		DontListen: true,
		NoSigs:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		logger.Error("Failed to create NATS server: %v", err)
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		ns.Shutdown()
		logger.Error("NATS server failed to start within 4s timeout")
		return nil, errors.New("nats server failed to start within timeout")
	}

	logger.Debug("NATS server ready for connections")
	return ns, nil
}

// ConnectInProcess creates an in-process connection to the embedded NATS server.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	conn, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		logger.Error("Failed to connect to NATS in-process: %v", err)
		return nil, err
	}
	return conn, nil
}

// CreateJetStream creates a JetStream context from a NATS connection.
func CreateJetStream(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// Shutdown drains the connection, then stops the server. Both steps are
// bounded so a wedged server cannot hang the CLI on exit.
func Shutdown(nc *nats.Conn, ns *server.Server) error {
	if nc != nil {
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- nc.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				logger.Warn("NATS drain failed, forcing close: %v", err)
				nc.Close()
			}
		case <-time.After(2 * time.Second):
			logger.Warn("NATS drain timed out after 2s, forcing close")
			nc.Close()
		}
	}

	if ns != nil {
		ns.Shutdown()

		shutdownDone := make(chan struct{})
		go func() {
			ns.WaitForShutdown()
			close(shutdownDone)
		}()

		select {
		case <-shutdownDone:
		case <-time.After(5 * time.Second):
			logger.Error("NATS server shutdown timed out after 5s")
			return errors.New("NATS server shutdown timed out")
		}
	}

	logger.Debug("NATS shutdown complete")
	return nil
}

// Embedded bundles a running server with its connection and event stream.
type Embedded struct {
	Server *server.Server
	Conn   *nats.Conn
	JS     jetstream.JetStream
	Stream jetstream.Stream
}

// Open starts a server in dataDir and prepares the event stream.
func Open(ctx context.Context, dataDir string) (*Embedded, error) {
	ns, err := StartEmbeddedNATS(dataDir)
	if err != nil {
		return nil, fmt.Errorf("starting event store: %w", err)
	}

	nc, err := ConnectInProcess(ns)
	if err != nil {
		_ = Shutdown(nil, ns)
		return nil, fmt.Errorf("connecting to event store: %w", err)
	}

	js, err := CreateJetStream(nc)
	if err != nil {
		_ = Shutdown(nc, ns)
		return nil, fmt.Errorf("creating jetstream: %w", err)
	}

	stream, err := SetupStream(ctx, js)
	if err != nil {
		_ = Shutdown(nc, ns)
		return nil, fmt.Errorf("setting up stream: %w", err)
	}

	return &Embedded{Server: ns, Conn: nc, JS: js, Stream: stream}, nil
}

// Close shuts the connection and server down.
func (e *Embedded) Close() error {
	return Shutdown(e.Conn, e.Server)
}
