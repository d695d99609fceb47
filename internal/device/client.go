// Package device defines the client contract for the managed network device
// and provides a gopsutil-backed local implementation for self-monitoring
// and development.
package device

import (
	"context"
	"strconv"
)

// Record is one row returned by a device print, as key/value fields.
type Record map[string]string

// Str returns a field value or empty string.
func (r Record) Str(key string) string {
	return r[key]
}

// Uint returns a field parsed as an unsigned integer, 0 on failure.
func (r Record) Uint(key string) uint64 {
	v, _ := strconv.ParseUint(r[key], 10, 64)
	return v
}

// Float returns a field parsed as a float, 0 on failure.
func (r Record) Float(key string) float64 {
	v, _ := strconv.ParseFloat(r[key], 64)
	return v
}

// Client is the device protocol contract. Implementations must honor
// context cancellation on every call.
type Client interface {
	// IsConnected reports whether the device is currently reachable.
	IsConnected() bool
	// Print lists the records at a device path, e.g. "/system/resource".
	Print(ctx context.Context, path string) ([]Record, error)
	// ExecuteRaw runs a raw command at a path and returns its output.
	ExecuteRaw(ctx context.Context, path string, params map[string]string) (string, error)
}

// Identity is the device self-description used for event enrichment.
type Identity struct {
	Hostname string
	Model    string
	Version  string
	IP       string
}

// FetchIdentity reads the device identity. Missing fields are left empty;
// only a transport failure is an error.
func FetchIdentity(ctx context.Context, c Client) (Identity, error) {
	var id Identity

	records, err := c.Print(ctx, "/system/identity")
	if err != nil {
		return id, err
	}
	if len(records) > 0 {
		id.Hostname = records[0].Str("name")
	}

	if records, err := c.Print(ctx, "/system/resource"); err == nil && len(records) > 0 {
		id.Model = records[0].Str("board-name")
		id.Version = records[0].Str("version")
	}

	if records, err := c.Print(ctx, "/ip/address"); err == nil && len(records) > 0 {
		id.IP = records[0].Str("address")
	}

	return id, nil
}
