package monitoring

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"procwatch/hostexec"
)

// trafficCacheMaxAge evicts traffic entries for connections not seen for
// this long.
const trafficCacheMaxAge = 60 * time.Second

var (
	ssProcessRe   = regexp.MustCompile(`users:\(\("([^"]+)",pid=(\d+)`)
	ssProcessAlt  = regexp.MustCompile(`\(\("([^"]+)",pid=(\d+)\)`)
	bytesSentRe   = regexp.MustCompile(`bytes_sent:(\d+)`)
	bytesAckedRe  = regexp.MustCompile(`bytes_acked:(\d+)`)
	bytesRecvdRe  = regexp.MustCompile(`bytes_received:(\d+)`)
	ssNetidTokens = map[string]bool{
		"tcp": true, "udp": true, "tcp6": true, "udp6": true,
		"raw": true, "unix": true, "u_dgr": true, "u_str": true,
	}
	ssStateTokens = map[string]bool{
		"LISTEN": true, "ESTAB": true, "ESTABLISHED": true, "UNCONN": true,
		"TIME-WAIT": true, "CLOSE-WAIT": true, "FIN-WAIT-1": true,
		"FIN-WAIT-2": true, "SYN-SENT": true, "SYN-RECV": true,
		"CLOSING": true, "LAST-ACK": true, "CLOSED": true,
	}
)

// connKey identifies a connection for traffic rate tracking: pid plus the
// full address 5-tuple.
type connKey struct {
	pid        int32
	localAddr  string
	localPort  int
	remoteAddr string
	remotePort int
}

type trafficEntry struct {
	sent uint64
	recv uint64
	seen time.Time
}

// PortStats enumerates sockets via ss and derives per-connection traffic
// rates from the kernel byte counters between consecutive calls.
type PortStats struct {
	runner  hostexec.Runner
	timeout time.Duration

	mu    sync.Mutex
	cache map[connKey]trafficEntry
	now   func() time.Time
}

func NewPortStats(r hostexec.Runner) *PortStats {
	return &PortStats{
		runner:  r,
		timeout: hostexec.DefaultTimeout,
		cache:   make(map[connKey]trafficEntry),
		now:     time.Now,
	}
}

// OpenPorts returns every TCP/UDP socket with process attribution. Rates
// are zero on a connection's first sighting and never negative; an
// apparent counter decrease (socket reuse, counter reset) reports zero.
func (p *PortStats) OpenPorts() []PortRecord {
	currentTime := p.now()

	output := p.runner.Run([]string{"ss", "-tunap"}, p.timeout)
	traffic := p.parseTrafficStats(p.runner.Run([]string{"ss", "-tunapi"}, p.timeout))

	p.mu.Lock()
	defer p.mu.Unlock()

	records := make([]PortRecord, 0, 64)
	for _, line := range strings.Split(output, "\n") {
		record, ok := parseSSLine(line)
		if !ok {
			continue
		}

		key := recordKey(record)
		if counters, ok := traffic[key]; ok {
			record.BytesSent = counters.sent
			record.BytesRecv = counters.recv
			if prev, cached := p.cache[key]; cached {
				if dt := currentTime.Sub(prev.seen).Seconds(); dt > 0 {
					record.SentRate = counterRate(counters.sent, prev.sent, dt)
					record.RecvRate = counterRate(counters.recv, prev.recv, dt)
				}
			}
			p.cache[key] = trafficEntry{sent: counters.sent, recv: counters.recv, seen: currentTime}
		} else if record.PID != 0 {
			// Seed the cache so the next pass can compute a rate.
			if _, cached := p.cache[key]; !cached {
				p.cache[key] = trafficEntry{seen: currentTime}
			}
		}

		records = append(records, record)
	}

	// Evict connections not seen within the cache window.
	cutoff := currentTime.Add(-trafficCacheMaxAge)
	for key, entry := range p.cache {
		if entry.seen.Before(cutoff) {
			delete(p.cache, key)
		}
	}

	return records
}

func counterRate(current, previous uint64, dt float64) float64 {
	if current < previous {
		return 0
	}
	return float64(current-previous) / dt
}

func recordKey(r PortRecord) connKey {
	return connKey{
		pid:        r.PID,
		localAddr:  r.LocalAddr,
		localPort:  r.LocalPort,
		remoteAddr: r.RemoteAddr,
		remotePort: r.RemotePort,
	}
}

// parseSSLine parses one ss connection line. ss emits a Netid column
// (tcp/udp) before the state; outputs filtered to one socket type omit
// it, so the layout is keyed off the first token.
func parseSSLine(line string) (PortRecord, bool) {
	parts := strings.Fields(line)
	if len(parts) < 5 || parts[0] == "State" || parts[0] == "Netid" {
		return PortRecord{}, false
	}

	var protocol, state, localToken, remoteToken string
	if ssNetidTokens[strings.ToLower(parts[0])] {
		if len(parts) < 6 {
			return PortRecord{}, false
		}
		protocol = strings.TrimSuffix(strings.ToLower(parts[0]), "6")
		state = parts[1]
		localToken = parts[4]
		remoteToken = parts[5]
	} else {
		// State-first layout: single-type output omits the Netid column.
		if !ssStateTokens[parts[0]] {
			return PortRecord{}, false
		}
		protocol = "tcp"
		state = parts[0]
		localToken = parts[3]
		remoteToken = parts[4]
	}
	if protocol != "tcp" && protocol != "udp" {
		return PortRecord{}, false
	}

	localAddr, localPort, ok := parseAddrPort(localToken)
	if !ok {
		return PortRecord{}, false
	}
	remoteAddr, remotePort, _ := parseAddrPort(remoteToken)

	record := PortRecord{
		Process:    "N/A",
		Protocol:   protocol,
		State:      state,
		LocalAddr:  localAddr,
		LocalPort:  localPort,
		RemoteAddr: remoteAddr,
		RemotePort: remotePort,
	}

	if m := ssProcessRe.FindStringSubmatch(line); m != nil {
		record.Process = m[1]
		pid, _ := strconv.ParseInt(m[2], 10, 32)
		record.PID = int32(pid)
	} else if m := ssProcessAlt.FindStringSubmatch(line); m != nil {
		record.Process = m[1]
		pid, _ := strconv.ParseInt(m[2], 10, 32)
		record.PID = int32(pid)
	}

	if strings.Contains(localAddr, "::") || strings.Contains(remoteAddr, "::") {
		record.Protocol += "6"
	}
	return record, true
}

// parseAddrPort splits an ss address token into address and port.
// Handles bracketed IPv6 ([::1]:8080), bare IPv6 (::1:8080, split on the
// last colon), IPv4, and wildcard ports.
func parseAddrPort(token string) (string, int, bool) {
	if token == "" || token == "*" || token == "*:*" {
		return "", 0, false
	}

	if strings.HasPrefix(token, "[") {
		end := strings.IndexByte(token, ']')
		if end <= 0 || end+2 > len(token) || token[end+1] != ':' {
			return "", 0, false
		}
		addr := token[1:end]
		portStr := token[end+2:]
		if portStr == "*" {
			return addr, 0, true
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false
		}
		return addr, port, true
	}

	idx := strings.LastIndexByte(token, ':')
	if idx < 0 {
		return token, 0, true
	}
	addr := token[:idx]
	portStr := token[idx+1:]
	if portStr == "*" {
		return addr, 0, true
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return addr, port, true
}

// parseTrafficStats extracts byte counters from ss -i output, where each
// connection line is followed by an indented statistics line.
func (p *PortStats) parseTrafficStats(output string) map[connKey]trafficEntry {
	traffic := make(map[connKey]trafficEntry)
	var current connKey
	var haveConn bool

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if record, ok := parseSSLine(trimmed); ok {
			if record.PID != 0 {
				current = recordKey(record)
				haveConn = true
			} else {
				haveConn = false
			}
			continue
		}

		if !haveConn {
			continue
		}
		if !strings.Contains(trimmed, "bytes_sent:") && !strings.Contains(trimmed, "bytes_received:") &&
			!strings.Contains(trimmed, "bytes_acked:") {
			continue
		}

		var entry trafficEntry
		if m := bytesSentRe.FindStringSubmatch(trimmed); m != nil {
			entry.sent, _ = strconv.ParseUint(m[1], 10, 64)
		} else if m := bytesAckedRe.FindStringSubmatch(trimmed); m != nil {
			entry.sent, _ = strconv.ParseUint(m[1], 10, 64)
		}
		if m := bytesRecvdRe.FindStringSubmatch(trimmed); m != nil {
			entry.recv, _ = strconv.ParseUint(m[1], 10, 64)
		}
		traffic[current] = entry
		haveConn = false
	}
	return traffic
}
