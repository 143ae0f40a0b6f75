// Package ttumdconfig parses the handful of environment variables this
// driver reads: TT_VISIBLE_DEVICES, and the simulator
// transport address variables. It follows gravwell's small
// os.Getenv-driven parse-and-validate helpers (ingest/config/env.go)
// rather than a general file-config loader, since a library has no config
// file of its own.
package ttumdconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const visibleDevicesEnv = "TT_VISIBLE_DEVICES"

// BDF is a PCI domain:bus:device.function address.
type BDF struct {
	Domain, Bus, Device, Function uint16
}

func (b BDF) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", b.Domain, b.Bus, b.Device, b.Function)
}

// ParseBDF parses "domain:bus:device.function" or the short "bus:device.function"
// form (domain defaults to 0).
func ParseBDF(tok string) (BDF, error) {
	var b BDF
	parts := strings.Split(tok, ":")
	var busStr, devFn string
	switch len(parts) {
	case 2:
		busStr, devFn = parts[0], parts[1]
	case 3:
		dom, err := strconv.ParseUint(parts[0], 16, 16)
		if err != nil {
			return b, fmt.Errorf("invalid BDF domain %q: %w", tok, err)
		}
		b.Domain = uint16(dom)
		busStr, devFn = parts[1], parts[2]
	default:
		return b, fmt.Errorf("invalid BDF token %q", tok)
	}
	bus, err := strconv.ParseUint(busStr, 16, 16)
	if err != nil {
		return b, fmt.Errorf("invalid BDF bus %q: %w", tok, err)
	}
	b.Bus = uint16(bus)

	dfParts := strings.SplitN(devFn, ".", 2)
	if len(dfParts) != 2 {
		return b, fmt.Errorf("invalid BDF device.function %q", tok)
	}
	dev, err := strconv.ParseUint(dfParts[0], 16, 16)
	if err != nil {
		return b, fmt.Errorf("invalid BDF device %q: %w", tok, err)
	}
	fn, err := strconv.ParseUint(dfParts[1], 16, 16)
	if err != nil {
		return b, fmt.Errorf("invalid BDF function %q: %w", tok, err)
	}
	b.Device, b.Function = uint16(dev), uint16(fn)
	return b, nil
}

// VisibleDevices is the parsed form of TT_VISIBLE_DEVICES: a comma
// separated list of numeric device indices or BDF tokens. An absent or
// empty variable means "all devices visible" (both slices are nil).
type VisibleDevices struct {
	Indices []int
	BDFs    []BDF
}

// Empty reports whether no allowlist was configured (all devices visible).
func (v VisibleDevices) Empty() bool {
	return len(v.Indices) == 0 && len(v.BDFs) == 0
}

// ParseVisibleDevices parses the raw TT_VISIBLE_DEVICES value. A token is
// parsed as a BDF if it contains a '.', otherwise as a numeric index.
func ParseVisibleDevices(raw string) (VisibleDevices, error) {
	var v VisibleDevices
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return v, nil
	}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if strings.Contains(tok, ".") {
			bdf, err := ParseBDF(tok)
			if err != nil {
				return VisibleDevices{}, fmt.Errorf("TT_VISIBLE_DEVICES: %w", err)
			}
			v.BDFs = append(v.BDFs, bdf)
			continue
		}
		idx, err := strconv.Atoi(tok)
		if err != nil {
			return VisibleDevices{}, fmt.Errorf("TT_VISIBLE_DEVICES: unrecognized token %q", tok)
		}
		v.Indices = append(v.Indices, idx)
	}
	return v, nil
}

// LoadVisibleDevices reads and parses TT_VISIBLE_DEVICES from the process
// environment.
func LoadVisibleDevices() (VisibleDevices, error) {
	return ParseVisibleDevices(os.Getenv(visibleDevicesEnv))
}

// Allows reports whether the allowlist permits the device at the given
// enumeration index with the given BDF. An empty allowlist permits all.
func (v VisibleDevices) Allows(index int, bdf BDF) bool {
	if v.Empty() {
		return true
	}
	for _, i := range v.Indices {
		if i == index {
			return true
		}
	}
	for _, b := range v.BDFs {
		if b == bdf {
			return true
		}
	}
	return false
}

// SimulatorAddr reads the RTL simulator messaging address from environment
// variables: NNG_SOCKET_ADDR takes priority (expected to be a filesystem
// path for a unix socket), otherwise NNG_SOCKET_LOCAL_PORT selects a TCP
// port on 127.0.0.1, or on "localhost" when TT_SIMULATOR_LOCALHOST is
// set, and the default is a well-known unix socket path.
func SimulatorAddr() (network, addr string) {
	if a := os.Getenv("NNG_SOCKET_ADDR"); a != "" {
		return "unix", a
	}
	if port := os.Getenv("NNG_SOCKET_LOCAL_PORT"); port != "" {
		host := "127.0.0.1"
		if os.Getenv("TT_SIMULATOR_LOCALHOST") != "" {
			host = "localhost"
		}
		return "tcp", fmt.Sprintf("%s:%s", host, port)
	}
	return "unix", "/tmp/tt_rtl_sim.sock"
}
