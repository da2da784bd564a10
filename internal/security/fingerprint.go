package security

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FingerprintEnvWhitelist lists the environment variables that take part in a device fingerprint.
var FingerprintEnvWhitelist = []string{"LANG", "TZ", "SHELL", "USER", "HOME"}

// DeviceAttributes is the canonical input of a device fingerprint
type DeviceAttributes struct {
	Platform          string            `json:"platform" validate:"required"`
	Architecture      string            `json:"architecture" validate:"required"`
	Hostname          string            `json:"hostname"`
	CPUModels         []string          `json:"cpu_models,omitempty"`
	TotalMemory       uint64            `json:"total_memory"`
	NetworkInterfaces []string          `json:"network_interfaces,omitempty"`
	Uptime            time.Duration     `json:"uptime"`
	Env               map[string]string `json:"env,omitempty"`
}

// Canonical renders the attributes in a stable order. Lists are sorted, hostnames lowercased,
// uptime is truncated to whole days and only whitelisted env vars are kept.
func (d DeviceAttributes) Canonical() string {
	var b strings.Builder
	writeField := func(key, value string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	writeField("platform", strings.ToLower(d.Platform))
	writeField("arch", strings.ToLower(d.Architecture))
	writeField("hostname", strings.ToLower(strings.TrimSpace(d.Hostname)))
	writeField("cpus", strings.Join(sortedCopy(d.CPUModels), ","))
	writeField("memory", strconv.FormatUint(d.TotalMemory, 10))
	writeField("interfaces", strings.Join(sortedCopy(d.NetworkInterfaces), ","))
	writeField("uptime_days", strconv.FormatInt(int64(d.Uptime/(24*time.Hour)), 10))

	for _, key := range FingerprintEnvWhitelist {
		if v, ok := d.Env[key]; ok {
			writeField("env."+key, v)
		}
	}
	return b.String()
}

// Hash returns the SHA-256 hex digest of the canonical form
func (d DeviceAttributes) Hash() string {
	sum := sha256.Sum256([]byte(d.Canonical()))
	return hex.EncodeToString(sum[:])
}

// Features breaks the canonical form into one token per attribute value, for set similarity
func (d DeviceAttributes) Features() []string {
	lines := strings.Split(strings.TrimSpace(d.Canonical()), "\n")
	features := make([]string, 0, len(lines)+len(d.CPUModels)+len(d.NetworkInterfaces))
	for _, line := range lines {
		key, value, _ := strings.Cut(line, "=")
		switch key {
		case "cpus", "interfaces":
			for _, item := range strings.Split(value, ",") {
				if item != "" {
					features = append(features, key+":"+item)
				}
			}
		default:
			features = append(features, line)
		}
	}
	return features
}

func sortedCopy(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// FingerprintManager collects the attributes of the host it runs on
type FingerprintManager struct {
	cache         *DeviceAttributes
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
	procRoot      string
}

// NewFingerprintManager creates a new fingerprint manager with caching
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		cacheDuration: 1 * time.Hour,
		procRoot:      "/proc",
	}
}

// GetHostname retrieves the machine hostname
func (fm *FingerprintManager) GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}

	return hostname, nil
}

// GetNetworkInterfaces lists up, non-loopback interfaces as name/mac pairs
func (fm *FingerprintManager) GetNetworkInterfaces() ([]string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var result []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac == "" || mac == "00:00:00:00:00:00" {
			continue
		}
		result = append(result, iface.Name+"/"+mac)
	}
	sort.Strings(result)
	return result, nil
}

// GetCPUModels returns the distinct CPU model names. Non-Linux hosts report GOOS-GOARCH.
func (fm *FingerprintManager) GetCPUModels() []string {
	fallback := []string{fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)}

	file, err := os.Open(fm.procRoot + "/cpuinfo")
	if err != nil {
		return fallback
	}
	defer file.Close()

	seen := make(map[string]struct{})
	var models []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "model name") {
			continue
		}
		_, model, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		model = strings.TrimSpace(model)
		if _, dup := seen[model]; dup || model == "" {
			continue
		}
		seen[model] = struct{}{}
		models = append(models, model)
	}
	if len(models) == 0 {
		return fallback
	}
	return models
}

// GetTotalMemory reads MemTotal in bytes. Zero when unknown.
func (fm *FingerprintManager) GetTotalMemory() uint64 {
	file, err := os.Open(fm.procRoot + "/meminfo")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "MemTotal:" {
			kb, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0
			}
			return kb * 1024
		}
	}
	return 0
}

// GetUptime reads the host uptime. Zero when unknown.
func (fm *FingerprintManager) GetUptime() time.Duration {
	data, err := os.ReadFile(fm.procRoot + "/uptime")
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0
	}
	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// CollectAttributes gathers the host's device attributes, cached for an hour
func (fm *FingerprintManager) CollectAttributes() DeviceAttributes {
	fm.cacheMutex.RLock()
	if fm.cache != nil && time.Now().Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.cacheMutex.RUnlock()
		return cached
	}
	fm.cacheMutex.RUnlock()

	start := time.Now()

	hostname, err := fm.GetHostname()
	if err != nil {
		hostname = "unknown-host"
		slog.Warn("Failed to get hostname, using fallback", slog.String("error", err.Error()))
	}

	ifaces, err := fm.GetNetworkInterfaces()
	if err != nil {
		slog.Warn("Failed to list network interfaces", slog.String("error", err.Error()))
	}

	env := make(map[string]string)
	for _, key := range FingerprintEnvWhitelist {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}

	attrs := DeviceAttributes{
		Platform:          runtime.GOOS,
		Architecture:      runtime.GOARCH,
		Hostname:          hostname,
		CPUModels:         fm.GetCPUModels(),
		TotalMemory:       fm.GetTotalMemory(),
		NetworkInterfaces: ifaces,
		Uptime:            fm.GetUptime(),
		Env:               env,
	}

	fm.cacheMutex.Lock()
	fm.cache = &attrs
	fm.cacheExpiry = time.Now().Add(fm.cacheDuration)
	fm.cacheMutex.Unlock()

	slog.Debug("Host device attributes collected",
		slog.String("hostname", hostname),
		slog.Int("interfaces", len(ifaces)),
		slog.Duration("generation_time", time.Since(start)),
	)

	return attrs
}

// ClearCache clears the cached attributes
func (fm *FingerprintManager) ClearCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()

	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}
