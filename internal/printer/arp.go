package printer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultARPTable is the Linux kernel's IPv4 neighbour table.
const DefaultARPTable = "/proc/net/arp"

// arpCommandTimeout bounds the fallback `arp` invocation.
const arpCommandTimeout = 2 * time.Second

// arpLine matches an IPv4 address followed by a hardware address, in both the
// BSD form "? (10.0.0.5) at 0:1b:..." and the Windows form "10.0.0.5  00-1b-...".
var arpLine = regexp.MustCompile(`\(?(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\)?\s+(?:at\s+)?([0-9a-fA-F]{1,2}(?:[:-][0-9a-fA-F]{1,2}){5})`)

// ProcTable reads the kernel neighbour table.
//
// On Linux the table at Path is parsed directly. When Path does not exist the
// system `arp` command is used instead.
type ProcTable struct {
	Path string

	// runARP is replaced in tests.
	runARP func(ctx context.Context, ip string) ([]byte, error)
}

// NewProcTable returns a table reading path, or DefaultARPTable when empty.
func NewProcTable(path string) *ProcTable {
	if path == "" {
		path = DefaultARPTable
	}
	return &ProcTable{Path: path, runARP: runARPCommand}
}

// Lookup implements NeighborTable.
func (t *ProcTable) Lookup(ip netip.Addr) (net.HardwareAddr, error) {
	f, err := os.Open(t.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return t.lookupCommand(ip)
	}
	if err != nil {
		return nil, fmt.Errorf("opening neighbour table: %w", err)
	}
	defer f.Close()

	return parseProcARP(f, ip)
}

// parseProcARP scans /proc/net/arp content for ip. Incomplete entries carry an
// all-zero address and are returned as such.
//
// Format:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.20     0x1         0x2         cc:bd:d3:00:71:2e     *        eth0
func parseProcARP(r io.Reader, ip netip.Addr) (net.HardwareAddr, error) {
	want := ip.String()

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] != want {
			continue
		}
		mac, err := net.ParseMAC(fields[3])
		if err != nil {
			return nil, fmt.Errorf("parsing neighbour entry for %s: %w", want, err)
		}
		return mac, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading neighbour table: %w", err)
	}
	return nil, nil
}

func (t *ProcTable) lookupCommand(ip netip.Addr) (net.HardwareAddr, error) {
	run := t.runARP
	if run == nil {
		run = runARPCommand
	}

	ctx, cancel := context.WithTimeout(context.Background(), arpCommandTimeout)
	defer cancel()

	out, err := run(ctx, ip.String())
	if err != nil {
		// arp exits non-zero when there is no entry.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("running arp: %w", err)
	}
	return parseARPOutput(out, ip)
}

func runARPCommand(ctx context.Context, ip string) ([]byte, error) {
	return exec.CommandContext(ctx, "arp", "-an", ip).Output()
}

// parseARPOutput finds ip in `arp -an` or `arp -a` output.
func parseARPOutput(out []byte, ip netip.Addr) (net.HardwareAddr, error) {
	want := ip.String()

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := arpLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if len(m) != 3 || m[1] != want {
			continue
		}
		return parsePaddedMAC(m[2])
	}
	return nil, nil
}

// parsePaddedMAC accepts the single-digit octets BSD arp prints ("0:1b:...").
func parsePaddedMAC(s string) (net.HardwareAddr, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return net.ParseMAC(strings.Join(parts, ":"))
}
