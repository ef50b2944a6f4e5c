package wallet

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"coffeeshop/internal/database"
)

const tnsNamesFile = "tnsnames.ora"

var (
	hostPattern    = regexp.MustCompile(`(?i)\(\s*host\s*=\s*([^)\s]+)\s*\)`)
	portPattern    = regexp.MustCompile(`(?i)\(\s*port\s*=\s*(\d+)\s*\)`)
	servicePattern = regexp.MustCompile(`(?i)\(\s*service_name\s*=\s*([^)\s]+)\s*\)`)
	certDNPattern  = regexp.MustCompile(`(?i)\(\s*ssl_server_cert_dn\s*=\s*"([^"]*)"\s*\)`)
	ezConnect      = regexp.MustCompile(`^(?:tcps://)?([^:/\s]+)(?::(\d+))?/([^\s?]+)$`)
)

// parseTNSNames returns the descriptors of a tnsnames.ora file keyed by
// lowercase alias.
func parseTNSNames(content string) map[string]string {
	out := make(map[string]string)
	i := 0
	for i < len(content) {
		// Skip blank space and comment lines between entries.
		switch c := content[i]; {
		case c == '#':
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
			continue
		}

		eq := strings.IndexByte(content[i:], '=')
		if eq < 0 {
			break
		}
		alias := strings.ToLower(strings.TrimSpace(content[i : i+eq]))
		i += eq + 1

		open := strings.IndexByte(content[i:], '(')
		if open < 0 {
			break
		}
		start := i + open
		depth, end := 0, -1
		for j := start; j < len(content); j++ {
			switch content[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end = j + 1
				break
			}
		}
		if end < 0 {
			break
		}
		// Aliases may be comma separated synonyms.
		for _, a := range strings.Split(alias, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out[a] = content[start:end]
			}
		}
		i = end
	}
	return out
}

// resolveDescriptor turns a TNS alias, a literal descriptor or an EZConnect
// string into an endpoint. The optional server certificate DN is returned as
// well.
func resolveDescriptor(dir, descriptor string) (database.Endpoint, string, error) {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return database.Endpoint{}, "", errors.New("empty service descriptor")
	}

	switch {
	case strings.HasPrefix(descriptor, "("):
	case ezConnect.MatchString(descriptor):
		m := ezConnect.FindStringSubmatch(descriptor)
		port := 1522
		if m[2] != "" {
			port, _ = strconv.Atoi(m[2])
		}
		return database.Endpoint{Host: m[1], Port: port, Service: m[3]}, "", nil
	default:
		data, err := os.ReadFile(filepath.Join(dir, tnsNamesFile))
		if err != nil {
			return database.Endpoint{}, "", fmt.Errorf("cannot resolve alias %q: %w", descriptor, err)
		}
		d, ok := parseTNSNames(string(data))[strings.ToLower(descriptor)]
		if !ok {
			return database.Endpoint{}, "", fmt.Errorf("alias %q not found in %s", descriptor, tnsNamesFile)
		}
		descriptor = d
	}

	host := hostPattern.FindStringSubmatch(descriptor)
	port := portPattern.FindStringSubmatch(descriptor)
	svc := servicePattern.FindStringSubmatch(descriptor)
	if host == nil || port == nil || svc == nil {
		return database.Endpoint{}, "", fmt.Errorf("descriptor lacks host, port or service_name: %s", descriptor)
	}
	p, err := strconv.Atoi(port[1])
	if err != nil {
		return database.Endpoint{}, "", fmt.Errorf("invalid port %q", port[1])
	}

	var dn string
	if m := certDNPattern.FindStringSubmatch(descriptor); m != nil {
		dn = m[1]
	}
	return database.Endpoint{Host: host[1], Port: p, Service: svc[1]}, dn, nil
}

// normalizeDN makes two distinguished names comparable regardless of
// attribute order, spacing and case.
func normalizeDN(dn string) string {
	parts := strings.Split(dn, ",")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		for j := range kv {
			kv[j] = strings.ToLower(strings.TrimSpace(kv[j]))
		}
		parts[i] = strings.Join(kv, "=")
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// requireServerDN makes the handshake fail unless the server leaf certificate
// subject equals dn. Standard chain and hostname verification still apply.
func requireServerDN(cfg *tls.Config, dn string) {
	if dn == "" {
		return
	}
	want := normalizeDN(dn)
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("server presented no certificate")
		}
		got := cs.PeerCertificates[0].Subject.String()
		if normalizeDN(got) != want {
			return fmt.Errorf("server certificate DN %q does not match %q", got, dn)
		}
		return nil
	}
}
