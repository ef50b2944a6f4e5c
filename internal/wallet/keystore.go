package wallet

import (
	"crypto"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

const (
	// WalletFile is the PKCS#12 wallet shipped inside the credential archive.
	WalletFile = "ewallet.p12"
	// KeyStoreFile and TrustStoreFile are the derived stores written next to
	// the extracted wallet.
	KeyStoreFile   = "keyStore.jks"
	TrustStoreFile = "trustStore.jks"

	keyAlias = "orakey"
)

// newPassphrase returns 130 bits of randomness as lowercase base32 text.
func newPassphrase() ([]byte, error) {
	buf := make([]byte, 17)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	// 17 bytes encode to 28 base32 characters (136 bits); 26 of them carry
	// 130 bits.
	s := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return []byte(strings.ToLower(s[:26])), nil
}

// stores are the key and trust store paths derived from a wallet.
type stores struct {
	keyPath   string
	trustPath string
}

// convertWallet splits the PKCS#12 wallet in dir into a key-only and a
// trust-only Java keystore, both protected by passphrase.
func convertWallet(dir string, walletPassword string, passphrase []byte) (stores, error) {
	data, err := os.ReadFile(filepath.Join(dir, WalletFile))
	if err != nil {
		return stores{}, fmt.Errorf("failed to open wallet: %w", err)
	}
	key, first, rest, err := pkcs12.DecodeChain(data, walletPassword)
	if err != nil {
		return stores{}, fmt.Errorf("failed to decode wallet: %w", err)
	}
	leaf, cas, err := splitIdentity(key, append([]*x509.Certificate{first}, rest...))
	if err != nil {
		return stores{}, err
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return stores{}, fmt.Errorf("unsupported wallet key: %w", err)
	}

	now := time.Now()
	chain := []keystore.Certificate{{Type: "X509", Content: leaf.Raw}}
	for _, ca := range cas {
		chain = append(chain, keystore.Certificate{Type: "X509", Content: ca.Raw})
	}

	keys := keystore.New()
	if err := keys.SetPrivateKeyEntry(keyAlias, keystore.PrivateKeyEntry{
		CreationTime:     now,
		PrivateKey:       pkcs8,
		CertificateChain: chain,
	}, passphrase); err != nil {
		return stores{}, fmt.Errorf("failed to add key entry: %w", err)
	}

	trust := keystore.New()
	for i, ca := range cas {
		alias := fmt.Sprintf("trusted-cert-%d", i)
		if err := trust.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
			CreationTime: now,
			Certificate:  keystore.Certificate{Type: "X509", Content: ca.Raw},
		}); err != nil {
			return stores{}, fmt.Errorf("failed to add trusted entry %s: %w", alias, err)
		}
	}

	st := stores{
		keyPath:   filepath.Join(dir, KeyStoreFile),
		trustPath: filepath.Join(dir, TrustStoreFile),
	}
	if err := saveStore(keys, st.keyPath, passphrase); err != nil {
		return stores{}, err
	}
	if err := saveStore(trust, st.trustPath, passphrase); err != nil {
		return stores{}, err
	}
	return st, nil
}

// splitIdentity returns the certificate holding the public half of key and
// the remaining certificates. Wallets do not order their certificate bags, so
// the first one is not necessarily the client certificate.
func splitIdentity(key interface{}, certs []*x509.Certificate) (*x509.Certificate, []*x509.Certificate, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported wallet key type %T", key)
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return nil, nil, fmt.Errorf("unsupported wallet public key type %T", signer.Public())
	}

	var leaf *x509.Certificate
	others := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		if leaf == nil && pub.Equal(c.PublicKey) {
			leaf = c
			continue
		}
		others = append(others, c)
	}
	if leaf == nil {
		return nil, nil, errors.New("wallet holds no certificate for its private key")
	}
	return leaf, others, nil
}

func saveStore(ks keystore.KeyStore, path string, passphrase []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := ks.Store(f, passphrase); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func loadStore(path string, passphrase []byte) (keystore.KeyStore, error) {
	ks := keystore.New()
	f, err := os.Open(path)
	if err != nil {
		return ks, err
	}
	defer f.Close()
	if err := ks.Load(f, passphrase); err != nil {
		return ks, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return ks, nil
}

// tlsConfig builds the client identity and root pool from the stores.
func (st stores) tlsConfig(passphrase []byte) (*tls.Config, error) {
	keys, err := loadStore(st.keyPath, passphrase)
	if err != nil {
		return nil, err
	}
	trust, err := loadStore(st.trustPath, passphrase)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: x509.NewCertPool()}

	for _, alias := range keys.Aliases() {
		if !keys.IsPrivateKeyEntry(alias) {
			continue
		}
		entry, err := keys.GetPrivateKeyEntry(alias, passphrase)
		if err != nil {
			return nil, err
		}
		key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid key entry %s: %w", alias, err)
		}
		cert := tls.Certificate{PrivateKey: key}
		for _, c := range entry.CertificateChain {
			cert.Certificate = append(cert.Certificate, c.Content)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}

	for _, alias := range trust.Aliases() {
		if !trust.IsTrustedCertificateEntry(alias) {
			continue
		}
		entry, err := trust.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, err
		}
		c, err := x509.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted entry %s: %w", alias, err)
		}
		cfg.RootCAs.AddCert(c)
	}

	if len(cfg.Certificates) == 0 {
		return nil, errors.New("wallet holds no client key")
	}
	return cfg, nil
}
