package transport

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roffe/godali"
)

type NewTransportFunc func(*godali.TransportConfig) (godali.Transport, error)

type Info struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                NewTransportFunc
}

func (i *Info) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", i.Name, i.Description, i.RequiresSerialPort)
}

var registry = make(map[string]*Info)

func Register(info *Info) error {
	key := strings.ToLower(info.Name)
	if _, found := registry[key]; found {
		return fmt.Errorf("transport %s already registered", info.Name)
	}
	registry[key] = info
	return nil
}

// New creates a driver by name. The config is completed with default
// callbacks before it is handed to the driver constructor.
func New(name string, cfg *godali.TransportConfig) (godali.Transport, error) {
	if cfg == nil {
		cfg = &godali.TransportConfig{}
	}
	cfg.Defaults()
	if info, found := registry[strings.ToLower(name)]; found {
		return info.New(cfg)
	}
	return nil, fmt.Errorf("unknown transport %q", name)
}

func List() []Info {
	var out []Info
	for _, info := range registry {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

func ListNames() []string {
	var out []string
	for _, info := range registry {
		out = append(out, info.Name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}
