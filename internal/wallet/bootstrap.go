// Package wallet turns a downloaded cloud database credential archive into an
// encrypted database session.
//
// The archive is unpacked into a private temporary directory, its PKCS#12
// wallet is split into a key store and a trust store protected by a one-time
// passphrase, and the resulting identity is assembled into a *tls.Config that
// is handed to the connection dialer directly. No process-wide TLS state is
// touched, so several bootstraps may run at the same time. The temporary
// directory is removed before Bootstrap returns, whatever the outcome.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"coffeeshop/internal/config"
	"coffeeshop/internal/database"

	"github.com/sirupsen/logrus"
)

// ErrBootstrap is matched by every BootstrapError.
var ErrBootstrap = errors.New("bootstrap failed")

// Stage names the bootstrap step that failed.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageCredentials Stage = "credentials"
	StageConnect     Stage = "connect"
)

// BootstrapError reports a failed bootstrap step.
type BootstrapError struct {
	Stage Stage
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("wallet bootstrap (%s): %v", e.Stage, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

func (e *BootstrapError) Is(target error) bool { return target == ErrBootstrap }

// ConnectFunc opens a database whose connections are dialed with dialer.
type ConnectFunc func(ep database.Endpoint, user, password string, dialer *database.TLSDialer) *sql.DB

// Bootstrapper holds the settings shared by every bootstrap call. The zero
// value connects with the Oracle driver and no wallet password.
type Bootstrapper struct {
	WalletPassword string
	// HTTPSProxy, when set, tunnels the database connection through an HTTP
	// CONNECT proxy ("host:port").
	HTTPSProxy string
	// TempRoot is the parent of the temporary credential directory; empty
	// means os.TempDir.
	TempRoot string
	Connect  ConnectFunc
}

// New returns a Bootstrapper configured from the database section.
func New(cfg config.DatabaseConfig) *Bootstrapper {
	return &Bootstrapper{WalletPassword: cfg.WalletPassword, HTTPSProxy: cfg.HTTPSProxy}
}

// Bootstrap opens an encrypted session to serviceDescriptor (TNS alias,
// literal descriptor or host:port/service) using the credential archive.
func (b *Bootstrapper) Bootstrap(ctx context.Context, archivePath, username, password, serviceDescriptor string) (*database.Session, error) {
	dir, err := os.MkdirTemp(b.TempRoot, "oracle_cloud_config")
	if err != nil {
		return nil, &BootstrapError{Stage: StageExtract, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logrus.Warnf("failed to remove credential directory %s: %v", dir, err)
		}
	}()

	if err := extractArchive(archivePath, dir); err != nil {
		return nil, &BootstrapError{Stage: StageExtract, Err: err}
	}

	passphrase, err := newPassphrase()
	if err != nil {
		return nil, &BootstrapError{Stage: StageCredentials, Err: err}
	}
	st, err := convertWallet(dir, b.WalletPassword, passphrase)
	if err != nil {
		return nil, &BootstrapError{Stage: StageCredentials, Err: err}
	}
	tlsCfg, err := st.tlsConfig(passphrase)
	if err != nil {
		return nil, &BootstrapError{Stage: StageCredentials, Err: err}
	}

	ep, dn, err := resolveDescriptor(dir, serviceDescriptor)
	if err != nil {
		return nil, &BootstrapError{Stage: StageConnect, Err: err}
	}
	requireServerDN(tlsCfg, dn)
	tlsCfg.ServerName = ep.Host

	connect := b.Connect
	if connect == nil {
		connect = database.OpenOracleTLS
	}
	db := connect(ep, username, password, &database.TLSDialer{Config: tlsCfg, Proxy: b.HTTPSProxy})
	sess, err := database.NewSession(ctx, config.DriverOracle, db)
	if err != nil {
		return nil, &BootstrapError{Stage: StageConnect, Err: err}
	}
	logrus.Infof("encrypted database session established | host=%s service=%s", ep.Host, ep.Service)
	return sess, nil
}
