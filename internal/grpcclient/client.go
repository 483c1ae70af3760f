package grpcclient

import (
	"crypto/tls"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds connection settings for the chat target.
type Config struct {
	Target   string // host:port
	UseTLS   bool
	Insecure bool // with UseTLS, skip certificate verification
	Metadata map[string]string
}

// ValidateTarget rejects an empty target.
func ValidateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("grpc target is not set")
	}
	return nil
}

// Dial creates a client connection. grpc.NewClient does not block, so
// connection failures surface on the first stream.
func Dial(cfg Config) (*grpc.ClientConn, error) {
	if err := ValidateTarget(cfg.Target); err != nil {
		return nil, err
	}
	return grpc.NewClient(cfg.Target, grpc.WithTransportCredentials(transportCredentials(cfg)))
}

func transportCredentials(cfg Config) credentials.TransportCredentials {
	if !cfg.UseTLS {
		return insecure.NewCredentials()
	}
	if cfg.Insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	}
	return credentials.NewClientTLSFromCert(nil, "")
}
