package core

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Blocklist is an immutable set of blocked IP networks, consulted by the
// in_blocklist operator. Entries may be single addresses or CIDR ranges.
type Blocklist struct {
	networks []netip.Prefix
}

// LoadBlocklist reads a CSV blocklist. The file has a header row and an "ip"
// column; rows that do not parse are skipped with a warning rather than
// failing the load, matching how threat feeds degrade in practice.
func LoadBlocklist(path string, logger *zap.SugaredLogger) (*Blocklist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocklist: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return &Blocklist{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blocklist header: %w", err)
	}

	ipCol := 0
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "ip") {
			ipCol = i
		}
	}

	bl := &Blocklist{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read blocklist row: %w", err)
		}
		if ipCol >= len(row) {
			continue
		}
		entry := strings.TrimSpace(row[ipCol])
		if entry == "" {
			continue
		}
		prefix, perr := parseNetwork(entry)
		if perr != nil {
			if logger != nil {
				logger.Warnw("Skipping invalid blocklist entry", "entry", entry, "error", perr)
			}
			continue
		}
		bl.networks = append(bl.networks, prefix)
	}
	return bl, nil
}

func parseNetwork(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Contains reports whether the given IP falls inside any blocked network.
// Unparseable input is simply not blocked.
func (bl *Blocklist) Contains(ip string) bool {
	if bl == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	for _, n := range bl.networks {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

// Len returns the number of loaded networks.
func (bl *Blocklist) Len() int {
	if bl == nil {
		return 0
	}
	return len(bl.networks)
}
