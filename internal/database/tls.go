package database

import (
	"bufio"
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"strconv"

	go_ora "github.com/sijms/go-ora/v2"
)

// Endpoint is a resolved Oracle listener address.
type Endpoint struct {
	Host    string
	Port    int
	Service string
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TLSDialer opens TCP connections and wraps them in TLS using an explicit
// configuration. When Proxy is set ("host:port") the TCP leg goes through an
// HTTP CONNECT tunnel.
type TLSDialer struct {
	Config *tls.Config
	Proxy  string
}

func (d *TLSDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var nd net.Dialer
	var (
		raw net.Conn
		err error
	)
	if d.Proxy != "" {
		raw, err = dialTunnel(ctx, &nd, d.Proxy, address)
	} else {
		raw, err = nd.DialContext(ctx, network, address)
	}
	if err != nil {
		return nil, err
	}

	cfg := d.Config.Clone()
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			raw.Close()
			return nil, err
		}
		cfg.ServerName = host
	}
	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake with %s failed: %w", address, err)
	}
	return conn, nil
}

func dialTunnel(ctx context.Context, nd *net.Dialer, proxy, address string) (net.Conn, error) {
	conn, err := nd.DialContext(ctx, "tcp", proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to reach proxy %s: %w", proxy, err)
	}
	req := &http.Request{
		Method: http.MethodConnect,
		Host:   address,
		Header: make(http.Header),
	}
	if _, err := fmt.Fprintf(conn, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", address, address); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send CONNECT to proxy %s: %w", proxy, err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}
	// The body of a CONNECT response is the tunnel itself; it is not drained.
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy %s refused tunnel to %s: %s", proxy, address, resp.Status)
	}
	return conn, nil
}

// OpenOracleTLS opens an Oracle database whose connections are dialed through
// dialer. Nothing is connected until the returned pool is used.
func OpenOracleTLS(ep Endpoint, user, password string, dialer *TLSDialer) *sql.DB {
	url := go_ora.BuildUrl(ep.Host, ep.Port, ep.Service, user, password, nil)
	connector := go_ora.NewConnector(url)
	connector.(*go_ora.OracleConnector).Dialer(dialer)
	return sql.OpenDB(connector)
}
