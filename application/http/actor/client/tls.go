package client

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"os"
	"update-transport/application/http"

	"github.com/pkg/errors"
)

func newTLSConfig(config http.ClientConfig, logger *slog.Logger) (*tls.Config, error) {
	if config.SSLEngine != "" {
		return nil, errors.Wrapf(http.ErrHTTPInit, "SSL engine %q is not supported", config.SSLEngine)
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.SkipVerify,
	}

	switch {
	case config.ClientCertPath != "" && config.ClientCertKeyPath != "":
		cert, err := tls.LoadX509KeyPair(config.ClientCertPath, config.ClientCertKeyPath)
		if err != nil {
			return nil, errors.Wrapf(http.ErrHTTPInit, "loading client certificate %s: %s", config.ClientCertPath, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case config.ClientCertPath != "" || config.ClientCertKeyPath != "":
		return nil, errors.Wrap(http.ErrHTTPInit, "cannot set only one of client certificate and client certificate private key")
	}

	pool, err := x509.SystemCertPool()
	if err != nil {
		if config.ServerCertPath == "" {
			// There would be no trusted certificates at all.
			return nil, errors.Wrap(err, "loading the system certificate pool")
		}
		logger.Info("failed to load the system certificate pool", "error", err)
		pool = x509.NewCertPool()
	}

	if config.ServerCertPath != "" {
		pem, err := os.ReadFile(config.ServerCertPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading the server certificate")
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Wrapf(http.ErrHTTPInit, "no certificate found in %s", config.ServerCertPath)
		}
	}
	tlsConfig.RootCAs = pool

	return tlsConfig, nil
}
