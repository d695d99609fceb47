package models

// InterfaceStatus is the operational state of a device interface.
type InterfaceStatus string

const (
	InterfaceUp   InterfaceStatus = "up"
	InterfaceDown InterfaceStatus = "down"
)

// SystemSample is one periodic reading of device-wide resources.
// Percentages are in [0,100]; memUsed <= memTotal and diskUsed <= diskTotal.
type SystemSample struct {
	Timestamp   Millis  `json:"timestamp"`
	CPUPct      float64 `json:"cpuPct"`
	MemTotal    uint64  `json:"memTotal"`
	MemUsed     uint64  `json:"memUsed"`
	MemFreePct  float64 `json:"memFreePct"`
	DiskTotal   uint64  `json:"diskTotal"`
	DiskUsed    uint64  `json:"diskUsed"`
	DiskFreePct float64 `json:"diskFreePct"`
	UptimeSec   int64   `json:"uptimeSec"`
}

// MemUsedPct returns the used-memory percentage.
func (s SystemSample) MemUsedPct() float64 {
	if s.MemTotal == 0 {
		return 0
	}
	return float64(s.MemUsed) / float64(s.MemTotal) * 100
}

// DiskUsedPct returns the used-disk percentage.
func (s SystemSample) DiskUsedPct() float64 {
	if s.DiskTotal == 0 {
		return 0
	}
	return float64(s.DiskUsed) / float64(s.DiskTotal) * 100
}

// InterfaceSample is one periodic reading of a single interface. Counters
// are monotonically non-decreasing on a stable device; a decrease signals a
// counter reset and invalidates derived rates for that interval.
type InterfaceSample struct {
	Timestamp Millis          `json:"timestamp"`
	Name      string          `json:"name"`
	Status    InterfaceStatus `json:"status"`
	RxBytes   uint64          `json:"rxBytes"`
	TxBytes   uint64          `json:"txBytes"`
	RxPackets uint64          `json:"rxPackets"`
	TxPackets uint64          `json:"txPackets"`
	RxErrors  uint64          `json:"rxErrors"`
	TxErrors  uint64          `json:"txErrors"`
}

// SampleSet bundles one collection tick: the system sample plus all
// interface samples taken at the same instant.
type SampleSet struct {
	System     *SystemSample     `json:"system,omitempty"`
	Interfaces []InterfaceSample `json:"interfaces,omitempty"`
}

// Interface returns the sample for a named interface, if present.
func (ss SampleSet) Interface(name string) (InterfaceSample, bool) {
	for _, ifc := range ss.Interfaces {
		if ifc.Name == name {
			return ifc, true
		}
	}
	return InterfaceSample{}, false
}
