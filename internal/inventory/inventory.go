// Package inventory reads the flat host list a run operates on.
package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

var ErrNoHosts = errors.New("no hosts")

// LoadHosts reads one device per line from path. Blank lines and lines
// starting with # are skipped; anything after the first comma is ignored so
// CSV exports with extra columns load as-is. Repeated hosts are kept.
func LoadHosts(path string) ([]dm.Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("host list: %w", err)
	}
	defer f.Close()

	devices, err := ParseHosts(f)
	if err != nil {
		return nil, fmt.Errorf("host list %s: %w", path, err)
	}
	return devices, nil
}

func ParseHosts(r io.Reader) ([]dm.Device, error) {
	var devices []dm.Device
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, _, _ := strings.Cut(line, ",")
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		devices = append(devices, dm.Device{Host: host, Index: len(devices)})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoHosts
	}
	return devices, nil
}
