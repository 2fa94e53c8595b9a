package monitoring

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"procwatch/hostexec"
)

// intelCacheTTL bounds how often intel_gpu_top runs. The tool needs a
// root sudo plus a one second sampling window per invocation, so both
// Processes and Totals share one parsed result.
const intelCacheTTL = 1800 * time.Millisecond

// IntelProvider reads per-client and engine statistics from
// intel_gpu_top JSON output. The tool streams a JSON array and gets cut
// off by timeout, so the parser recovers the last complete object from
// truncated output.
type IntelProvider struct {
	runner  hostexec.Runner
	timeout time.Duration

	mu        sync.Mutex
	cache     map[string]json.RawMessage
	cacheTime time.Time
	now       func() time.Time
}

func NewIntelProvider(r hostexec.Runner) *IntelProvider {
	return &IntelProvider{
		runner:  r,
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

func (p *IntelProvider) Vendor() GPUVendor { return VendorIntel }

func (p *IntelProvider) Processes() map[int32]GPUProcessInfo {
	processes := make(map[int32]GPUProcessInfo)
	data := p.sample()
	if data == nil {
		return processes
	}

	var clients map[string]struct {
		PID           string                     `json:"pid"`
		EngineClasses map[string]json.RawMessage `json:"engine-classes"`
	}
	if raw, ok := data["clients"]; ok {
		if err := json.Unmarshal(raw, &clients); err != nil {
			return processes
		}
	}

	for _, client := range clients {
		pid, err := strconv.ParseInt(client.PID, 10, 32)
		if err != nil {
			continue
		}
		render := engineBusy(client.EngineClasses, "Render/3D", "Render", "RCS", "render")
		video := engineBusy(client.EngineClasses, "Video", "VCS", "video")
		processes[int32(pid)] = GPUProcessInfo{
			PID:      int32(pid),
			Usage:    render,
			Encoding: video,
			Decoding: video,
			Vendor:   VendorIntel,
		}
	}
	return processes
}

func (p *IntelProvider) Totals() GPUTotals {
	totals := GPUTotals{}
	data := p.sample()
	if data == nil {
		return totals
	}

	var engines map[string]json.RawMessage
	if raw, ok := data["engines"]; ok {
		if err := json.Unmarshal(raw, &engines); err != nil {
			return totals
		}
	}

	totals.Usage = engineBusy(engines, "Render/3D", "Render", "RCS")
	video := engineBusy(engines, "Video", "VCS")
	totals.Encoding = video
	totals.Decoding = video
	return totals
}

// engineBusy returns the busy value of the first matching engine name.
// intel_gpu_top emits busy both as a number and as a string depending on
// version, so both are accepted.
func engineBusy(engines map[string]json.RawMessage, names ...string) float64 {
	for _, name := range names {
		raw, ok := engines[name]
		if !ok {
			continue
		}
		var engine struct {
			Busy json.Number `json:"busy"`
		}
		if err := json.Unmarshal(raw, &engine); err != nil {
			// Retry with a string busy field.
			var alt struct {
				Busy string `json:"busy"`
			}
			if err := json.Unmarshal(raw, &alt); err != nil {
				return 0
			}
			v, _ := strconv.ParseFloat(alt.Busy, 64)
			if v < 0 {
				v = 0
			}
			return v
		}
		v, _ := engine.Busy.Float64()
		if v < 0 {
			v = 0
		}
		return v
	}
	return 0
}

// sample returns the current intel_gpu_top reading, refreshing the cache
// when it is older than the TTL.
func (p *IntelProvider) sample() map[string]json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil && p.now().Sub(p.cacheTime) < intelCacheTTL {
		return p.cache
	}

	// sudo -n: the tool needs root but must never block on a password
	// prompt; timeout bounds the sampling window.
	out := p.runner.Run([]string{"sudo", "-n", "timeout", "1", "intel_gpu_top", "-J", "-o", "-"}, p.timeout)
	if strings.TrimSpace(out) == "" {
		return p.cache
	}

	data := parseIntelJSON(out)
	if data != nil {
		p.cache = data
		p.cacheTime = p.now()
	}
	return p.cache
}

// parseIntelJSON parses intel_gpu_top output. Complete output is a JSON
// array of samples (the last one wins) or a single object. Truncated
// output falls back to a brace scan that extracts the last complete
// top-level object, honoring string and escape state.
func parseIntelJSON(out string) map[string]json.RawMessage {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}

	var asList []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &asList); err == nil {
		if len(asList) == 0 {
			return nil
		}
		return asList[len(asList)-1]
	}
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &asObject); err == nil {
		return asObject
	}

	obj := lastCompleteObject(out)
	if obj == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(obj), &asObject); err != nil {
		return nil
	}
	return asObject
}

// lastCompleteObject finds the last balanced {...} region of s, skipping
// braces inside JSON strings.
func lastCompleteObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	lastEnd := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					lastEnd = i
				}
			}
		}
	}
	if lastEnd <= 0 {
		return ""
	}

	// Walk back from the closing brace to its opener.
	depth = 0
	for i := lastEnd; i >= 0; i-- {
		switch s[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return s[i : lastEnd+1]
			}
		}
	}
	return ""
}
