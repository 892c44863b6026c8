package mainboilerplate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
)

// EtcdConfig configures the application Etcd session.
type EtcdConfig struct {
	Address       string        `long:"address" env:"ADDRESS" default:"http://localhost:2379" description:"Etcd service address endpoint"`
	CertFile      string        `long:"cert-file" env:"CERT_FILE" default:"" description:"Path to the client TLS certificate"`
	CertKeyFile   string        `long:"cert-key-file" env:"CERT_KEY_FILE" default:"" description:"Path to the client TLS private key"`
	TrustedCAFile string        `long:"trusted-ca-file" env:"TRUSTED_CA_FILE" default:"" description:"Path to the trusted CA for client verification of server certificates"`
	DialTimeout   time.Duration `long:"dial-timeout" env:"DIAL_TIMEOUT" default:"5s" description:"Timeout of each Etcd dial attempt"`
	Prefix        string        `long:"prefix" env:"PREFIX" default:"/livesweep" description:"Etcd key prefix under which the document is stored"`
}

// MustDial builds an Etcd client connection.
func (c *EtcdConfig) MustDial() *clientv3.Client {
	var addr, err = url.Parse(c.Address)
	Must(err, "failed to parse Etcd address", "address", c.Address)

	var tlsConfig *tls.Config
	switch addr.Scheme {
	case "https":
		tlsConfig, err = buildTLSConfig(c.CertFile, c.CertKeyFile, c.TrustedCAFile)
		Must(err, "failed to build TLS config")
	case "unix":
		// The Etcd client requires hostname is stripped from unix:// URLs.
		addr.Host = ""
	}

	// Use a blocking dial to build a trial connection to Etcd. If we're actively
	// partitioned or mis-configured this avoids a crash loop, and there's
	// nothing actionable to do anyway aside from wait (or be SIGTERM'd).
	var timer = time.AfterFunc(time.Second, func() {
		log.WithField("addr", addr.String()).Warn("dialing Etcd is taking a while (is network okay?)")
	})
	trialEtcd, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{addr.String()},
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
		TLS:         tlsConfig,
	})
	Must(err, "failed to build trial Etcd client")

	_ = trialEtcd.Close()
	timer.Stop()

	etcd, err := clientv3.New(clientv3.Config{
		Endpoints: []string{addr.String()},
		// Automatically and periodically sync the set of Etcd servers.
		AutoSyncInterval:     time.Minute,
		DialTimeout:          c.DialTimeout,
		DialKeepAliveTime:    c.DialTimeout,
		DialKeepAliveTimeout: c.DialTimeout,
		// Require a reasonably recent server cluster.
		RejectOldCluster: true,
		TLS:              tlsConfig,
	})
	Must(err, "failed to build Etcd client")

	Must(etcd.Sync(context.Background()), "initial Etcd endpoint sync failed")
	return etcd
}

// buildTLSConfig returns a client tls.Config presenting the optional
// certificate |certPath| & |keyPath|, and verifying servers against the
// optional CA |trustedCAPath|.
func buildTLSConfig(certPath, keyPath, trustedCAPath string) (*tls.Config, error) {
	var cfg = &tls.Config{MinVersion: tls.VersionTLS12}

	if certPath != "" {
		var cert, err = tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, errors.Wrap(err, "loading client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if trustedCAPath != "" {
		var pem, err = os.ReadFile(trustedCAPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading trusted CA")
		}
		cfg.RootCAs = x509.NewCertPool()
		if !cfg.RootCAs.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates found in %s", trustedCAPath)
		}
	}
	return cfg, nil
}
