//go:build linux

package etcdtest

import "syscall"

// getSysProcAttr delivers SIGTERM to `etcd` should the test process die
// (eg, of a test timeout panic), so that `go test` doesn't hang awaiting it.
func getSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
