// Package etcdtest runs an Etcd server for the duration of a package's tests,
// and provides a client of it.
package etcdtest

import (
	"context"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// TestClient returns a client of the test Etcd server. It fails if the server
// isn't empty, which indicates that a prior test didn't Cleanup.
func TestClient() *clientv3.Client {
	var resp, err = client.Get(context.Background(), "", clientv3.WithPrefix(), clientv3.WithLimit(5))
	if err != nil {
		log.WithField("err", err).Fatal("failed to list test etcd")
	} else if len(resp.Kvs) != 0 {
		log.WithField("kvs", resp.Kvs).Fatal("etcd not empty; did a previous test not clean up?")
	}
	return client
}

// Cleanup removes all keys of the test Etcd server. Tests using TestClient
// should defer it.
func Cleanup() {
	if _, err := client.Delete(context.Background(), "", clientv3.WithPrefix()); err != nil {
		log.WithField("err", err).Fatal("failed to clean up test etcd")
	}
}

var client *clientv3.Client

// TestMainWithEtcd starts an `etcd` process, runs the tests of |m| with a
// client of it, and then stops it. Packages use it as:
//
//	func TestMain(m *testing.M) { etcdtest.TestMainWithEtcd(m) }
func TestMainWithEtcd(m *testing.M) {
	var cmd = exec.Command("etcd",
		"--listen-peer-urls", "unix://peer.sock:0",
		"--listen-client-urls", "unix://client.sock:0",
		"--advertise-client-urls", "unix://client.sock:0",
	)
	cmd.Env = append([]string{"ETCD_LOG_LEVEL=error", "ETCD_LOGGER=zap"}, os.Environ()...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	cmd.SysProcAttr = getSysProcAttr()

	var err error
	if cmd.Dir, err = os.MkdirTemp("", "etcdtest"); err != nil {
		log.WithField("err", err).Fatal("failed to create etcd directory")
	}
	log.WithField("args", cmd.Args).Info("starting etcd")

	if err = cmd.Start(); err != nil {
		log.WithField("err", err).Fatal("failed to start etcd")
	}

	os.Exit(func() int {
		defer func() {
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				log.WithField("err", err).Fatal("failed to TERM etcd")
			}
			_ = cmd.Wait()

			if err := os.RemoveAll(cmd.Dir); err != nil {
				log.WithFields(log.Fields{"dir": cmd.Dir, "err": err}).Fatal("failed to remove etcd directory")
			}
		}()

		var ep = "unix://" + cmd.Dir + "/client.sock:0"
		if client, err = clientv3.New(clientv3.Config{
			Endpoints:   []string{ep},
			DialTimeout: 5 * time.Second,
		}); err != nil {
			log.WithField("err", err).Fatal("failed to build etcd client")
		}
		_ = TestClient() // Verify the client works.

		return m.Run()
	}())
}
