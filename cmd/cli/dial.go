package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultAddress = "localhost:50061"

// connOptions are the global flags; empty values fall back to the same
// CRAWLD_* environment variables the daemon reads.
type connOptions struct {
	address  string
	insecure bool
}

func (o *connOptions) resolvedAddress() string {
	if addr := strings.TrimSpace(o.address); addr != "" {
		return addr
	}
	if addr := strings.TrimSpace(os.Getenv("CRAWLD_ADDRESS")); addr != "" {
		return addr
	}
	return defaultAddress
}

func (o *connOptions) useInsecure() bool {
	if o.insecure {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(os.Getenv("CRAWLD_INSECURE")))
	return v == "1" || v == "true" || v == "yes"
}

func dial(o *connOptions) (*grpc.ClientConn, error) {
	creds, err := transportCredentials(o)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(o.resolvedAddress(), grpc.WithTransportCredentials(creds))
}

func transportCredentials(o *connOptions) (credentials.TransportCredentials, error) {
	if o.useInsecure() {
		return insecure.NewCredentials(), nil
	}

	keyPEM := os.Getenv("CRAWLD_TLS_KEY")
	certPEM := os.Getenv("CRAWLD_TLS_CERT")
	caPEM := os.Getenv("CRAWLD_CA_TLS_CERT")
	if strings.TrimSpace(keyPEM) == "" || strings.TrimSpace(certPEM) == "" || strings.TrimSpace(caPEM) == "" {
		return nil, errors.New("missing TLS environment variables; require CRAWLD_TLS_KEY, CRAWLD_TLS_CERT, CRAWLD_CA_TLS_CERT or --insecure")
	}

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse TLS cert/key from env: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(caPEM)) {
		return nil, errors.New("failed to parse CA cert from env")
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}), nil
}
