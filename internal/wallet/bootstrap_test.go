package wallet

import (
	"archive/zip"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coffeeshop/internal/database"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	testWalletPassword = "Welcome_123"
	testTNSNames       = `# generated for tests
shop_high = (description= (retry_count=20)(retry_delay=3)(address=(protocol=tcps)(port=1522)(host=adb.example.com))(connect_data=(service_name=abc_shop_high.adb.example.com))(security=(ssl_server_dn_match=yes)(ssl_server_cert_dn="CN=adb.example.com, O=Example Corp, C=US")))

shop_low, shop_tp = (description=(address=(protocol=tcps)(port=1522)(host=adb.example.com))(connect_data=(service_name=abc_shop_low.adb.example.com)))
`
)

type testPKI struct {
	ca        *x509.Certificate
	caKey     *ecdsa.PrivateKey
	client    *x509.Certificate
	clientKey *ecdsa.PrivateKey
}

func newCert(t *testing.T, tmpl *x509.Certificate, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	if parent == nil {
		parent, parentKey = tmpl, key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func newPKI(t *testing.T) testPKI {
	t.Helper()
	now := time.Now()
	ca, caKey := newCert(t, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}, nil, nil)
	client, clientKey := newCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "shop client"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, ca, caKey)
	return testPKI{ca: ca, caKey: caKey, client: client, clientKey: clientKey}
}

func writeArchive(t *testing.T, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Wallet_shop.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func walletArchive(t *testing.T, pki testPKI) string {
	t.Helper()
	p12, err := pkcs12.Modern.Encode(pki.clientKey, pki.client, []*x509.Certificate{pki.ca}, testWalletPassword)
	require.NoError(t, err)
	return writeArchive(t, map[string][]byte{
		WalletFile:         p12,
		tnsNamesFile:       []byte(testTNSNames),
		"sqlnet.ora":       []byte(`WALLET_LOCATION = (SOURCE = (METHOD = file) (METHOD_DATA = (DIRECTORY="?/network/admin")))`),
		"ojdbc.properties": []byte("oracle.net.wallet_location=(source=(method=file)(method_data=(directory=${TNS_ADMIN})))\n"),
	})
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "credential directory must be removed")
}

func TestBootstrap_SuccessRemovesTempDir(t *testing.T) {
	pki := newPKI(t)
	root := t.TempDir()

	var got *database.TLSDialer
	var gotEP database.Endpoint
	b := &Bootstrapper{
		WalletPassword: testWalletPassword,
		TempRoot:       root,
		Connect: func(ep database.Endpoint, user, password string, d *database.TLSDialer) *sql.DB {
			got, gotEP = d, ep
			db, err := sql.Open("sqlite3", ":memory:")
			require.NoError(t, err)
			return db
		},
	}

	sess, err := b.Bootstrap(context.Background(), walletArchive(t, pki), "ADMIN", "pw", "shop_high")
	require.NoError(t, err)
	defer sess.Close()

	assertEmptyDir(t, root)
	assert.Equal(t, database.Endpoint{Host: "adb.example.com", Port: 1522, Service: "abc_shop_high.adb.example.com"}, gotEP)

	require.NotNil(t, got)
	assert.Equal(t, uint16(tls.VersionTLS12), got.Config.MinVersion)
	assert.Equal(t, "adb.example.com", got.Config.ServerName)
	assert.False(t, got.Config.InsecureSkipVerify)
	assert.NotNil(t, got.Config.VerifyConnection, "ssl_server_cert_dn must be enforced")
	require.Len(t, got.Config.Certificates, 1)
	assert.Equal(t, pki.client.Raw, got.Config.Certificates[0].Certificate[0])
}

func TestBootstrap_ConnectFailureRemovesTempDir(t *testing.T) {
	pki := newPKI(t)
	root := t.TempDir()
	b := &Bootstrapper{
		WalletPassword: testWalletPassword,
		TempRoot:       root,
		Connect: func(database.Endpoint, string, string, *database.TLSDialer) *sql.DB {
			db, err := sql.Open("sqlite3", filepath.Join(root, "missing", "dir", "x.db"))
			require.NoError(t, err)
			return db
		},
	}

	_, err := b.Bootstrap(context.Background(), walletArchive(t, pki), "ADMIN", "pw", "shop_low")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBootstrap)
	var be *BootstrapError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, StageConnect, be.Stage)

	assertEmptyDir(t, root)
}

func TestBootstrap_StageErrors(t *testing.T) {
	pki := newPKI(t)
	corrupt := filepath.Join(t.TempDir(), "corrupt.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0o600))
	noWallet := writeArchive(t, map[string][]byte{tnsNamesFile: []byte(testTNSNames)})

	tests := []struct {
		name       string
		archive    string
		password   string
		descriptor string
		stage      Stage
	}{
		{"missing archive", filepath.Join(t.TempDir(), "nope.zip"), testWalletPassword, "shop_high", StageExtract},
		{"corrupt archive", corrupt, testWalletPassword, "shop_high", StageExtract},
		{"no wallet", noWallet, testWalletPassword, "shop_high", StageCredentials},
		{"wrong wallet password", walletArchive(t, pki), "wrong", "shop_high", StageCredentials},
		{"unknown alias", walletArchive(t, pki), testWalletPassword, "shop_medium", StageConnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			b := &Bootstrapper{
				WalletPassword: tt.password,
				TempRoot:       root,
				Connect: func(database.Endpoint, string, string, *database.TLSDialer) *sql.DB {
					t.Fatal("connect must not be reached")
					return nil
				},
			}
			_, err := b.Bootstrap(context.Background(), tt.archive, "u", "p", tt.descriptor)
			var be *BootstrapError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.stage, be.Stage)
			assertEmptyDir(t, root)
		})
	}
}

func TestConvertWallet_SplitsKeyAndTrustEntries(t *testing.T) {
	pki := newPKI(t)
	dir := t.TempDir()
	require.NoError(t, extractArchive(walletArchive(t, pki), dir))

	pass, err := newPassphrase()
	require.NoError(t, err)
	st, err := convertWallet(dir, testWalletPassword, pass)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, KeyStoreFile), st.keyPath)
	assert.Equal(t, filepath.Join(dir, TrustStoreFile), st.trustPath)

	keys, err := loadStore(st.keyPath, pass)
	require.NoError(t, err)
	require.NotEmpty(t, keys.Aliases())
	for _, a := range keys.Aliases() {
		assert.True(t, keys.IsPrivateKeyEntry(a), "key store must only hold key entries")
	}

	trust, err := loadStore(st.trustPath, pass)
	require.NoError(t, err)
	require.Len(t, trust.Aliases(), 1)
	for _, a := range trust.Aliases() {
		assert.True(t, trust.IsTrustedCertificateEntry(a), "trust store must only hold certificates")
	}

	_, err = loadStore(st.keyPath, []byte("other"))
	assert.Error(t, err, "stores are protected by the passphrase")
}

func TestConvertWallet_FindsLeafWhenCABagComesFirst(t *testing.T) {
	pki := newPKI(t)
	p12, err := pkcs12.Modern.Encode(pki.clientKey, pki.ca, []*x509.Certificate{pki.client}, testWalletPassword)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WalletFile), p12, 0o600))

	pass, err := newPassphrase()
	require.NoError(t, err)
	st, err := convertWallet(dir, testWalletPassword, pass)
	require.NoError(t, err)

	cfg, err := st.tlsConfig(pass)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, pki.client.Raw, cfg.Certificates[0].Certificate[0], "client key is paired with the client certificate")

	trust, err := loadStore(st.trustPath, pass)
	require.NoError(t, err)
	require.Len(t, trust.Aliases(), 1)
	entry, err := trust.GetTrustedCertificateEntry(trust.Aliases()[0])
	require.NoError(t, err)
	assert.Equal(t, pki.ca.Raw, entry.Certificate.Content, "only the CA is trusted")
}

func TestSplitIdentity_NoMatchingCertificate(t *testing.T) {
	pki := newPKI(t)
	_, _, err := splitIdentity(pki.clientKey, []*x509.Certificate{pki.ca})
	assert.Error(t, err)
}

func TestNewPassphrase(t *testing.T) {
	a, err := newPassphrase()
	require.NoError(t, err)
	b, err := newPassphrase()
	require.NoError(t, err)
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

// The derived configuration must complete a mutual TLS handshake with a
// server trusting the same CA.
func TestStoresTLSConfig_MutualHandshake(t *testing.T) {
	pki := newPKI(t)
	dir := t.TempDir()
	require.NoError(t, extractArchive(walletArchive(t, pki), dir))
	pass, err := newPassphrase()
	require.NoError(t, err)
	st, err := convertWallet(dir, testWalletPassword, pass)
	require.NoError(t, err)
	cfg, err := st.tlsConfig(pass)
	require.NoError(t, err)

	now := time.Now()
	serverCert, serverKey := newCert(t, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "adb.example.com", Organization: []string{"Example Corp"}, Country: []string{"US"}},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}, pki.ca, pki.caKey)

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(pki.ca)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{serverCert.Raw}, PrivateKey: serverKey}},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    clientCAs,
	}
	srv.StartTLS()
	defer srv.Close()

	requireServerDN(cfg, "CN=adb.example.com, O=Example Corp, C=US")
	conn, err := (&database.TLSDialer{Config: cfg}).DialContext(context.Background(), "tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	conn.Close()

	mismatch := cfg.Clone()
	requireServerDN(mismatch, "CN=other.example.com")
	_, err = (&database.TLSDialer{Config: mismatch}).DialContext(context.Background(), "tcp", srv.Listener.Addr().String())
	assert.Error(t, err)

	// A matching DN does not waive hostname verification.
	wrongHost := cfg.Clone()
	wrongHost.ServerName = "db.other.example"
	requireServerDN(wrongHost, "CN=adb.example.com, O=Example Corp, C=US")
	_, err = (&database.TLSDialer{Config: wrongHost}).DialContext(context.Background(), "tcp", srv.Listener.Addr().String())
	assert.Error(t, err)
}
