package mainboilerplate

import (
	"fmt"
	"os"

	petname "github.com/dustinkirkland/golang-petname"
)

// ServiceConfig represents identification and addressing configuration of the process.
type ServiceConfig struct {
	ID   string `long:"id" env:"ID" description:"Unique ID of this process. Auto-generated if not set"`
	Host string `long:"host" env:"HOST" description:"Addressable, advertised hostname or IP of this process. Hostname is used if not set"`
	Port uint16 `long:"port" env:"PORT" default:"8080" description:"Service port for HTTP requests"`
}

// Resolve fills in the generated ID and hostname of an unset ID or Host.
func (cfg *ServiceConfig) Resolve() {
	var err error
	if cfg.ID == "" {
		cfg.ID = petname.Generate(2, "-")
	}
	if cfg.Host == "" {
		cfg.Host, err = os.Hostname()
		Must(err, "failed to determine hostname")
	}
}

// ListenAddr is the address at which the service listens.
func (cfg ServiceConfig) ListenAddr() string { return fmt.Sprintf(":%d", cfg.Port) }

// Endpoint is the advertised websocket store URL of the service.
func (cfg ServiceConfig) Endpoint(path string) string {
	return fmt.Sprintf("ws://%s:%d%s", cfg.Host, cfg.Port, path)
}
