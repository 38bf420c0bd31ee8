package ble

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSerialUUID is the HM-10 serial characteristic (FFE1), used when
// a registry entry lists no characteristics.
const DefaultSerialUUID = "FFE1"

// Device is one entry of the device registry.
type Device struct {
	Node            int
	Name            string
	Type            string
	Address         string
	Random          bool
	Characteristics []Characteristic
}

// Characteristic is an LECHAR line belonging to the preceding DEVICE line.
type Characteristic struct {
	Name   string
	UUID   string
	Permit string
	Size   int
}

// Registry is a parsed devices.txt.
type Registry struct {
	Devices []Device
}

// registryKey matches "KEY =" tokens. Values run until the next key.
var registryKey = regexp.MustCompile(`(?i)\b(DEVICE|TYPE|NODE|ADDRESS|RANDOM|CHANNEL|PIN|PASSKEY|LECHAR|PERMIT|SIZE|UUID|HANDLE)\s*=`)

// LoadRegistry reads and parses a registry file.
func LoadRegistry(path string) (*Registry, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening device registry: %w", err)
	}
	defer f.Close()

	return ParseRegistry(f)
}

// ParseRegistry parses btferret style registry text:
//
//	; comment
//	DEVICE = SHSF Nano  TYPE=LE  NODE=7  ADDRESS = 00:1E:C0:2B:4F:11
//	  LECHAR = Serial  PERMIT=1E  SIZE=20  UUID=FFE1
//
// Keys are case-insensitive. Lines starting with ';' or '#' are comments.
func ParseRegistry(r io.Reader) (*Registry, error) {
	reg := &Registry{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitFields(line)
		if len(fields) == 0 {
			continue
		}

		switch {
		case hasKey(fields, "DEVICE"):
			dev, err := parseDevice(fields)
			if err != nil {
				return nil, fmt.Errorf("device registry line %d: %w", lineNo, err)
			}
			reg.Devices = append(reg.Devices, dev)
		case hasKey(fields, "LECHAR"):
			if len(reg.Devices) == 0 {
				return nil, fmt.Errorf("device registry line %d: LECHAR before any DEVICE", lineNo)
			}
			ch, err := parseCharacteristic(fields)
			if err != nil {
				return nil, fmt.Errorf("device registry line %d: %w", lineNo, err)
			}
			last := &reg.Devices[len(reg.Devices)-1]
			last.Characteristics = append(last.Characteristics, ch)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading device registry: %w", err)
	}
	return reg, nil
}

// Node returns the device with the given node number.
func (r *Registry) Node(node int) (Device, error) {
	for _, d := range r.Devices {
		if d.Node == node {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %d", ErrNodeNotFound, node)
}

// CharacteristicUUID returns the UUID of the characteristic at index.
// A device without LECHAR lines has the HM-10 serial characteristic at index 0.
func (d Device) CharacteristicUUID(index int) (string, error) {
	if len(d.Characteristics) == 0 && index == 0 {
		return DefaultSerialUUID, nil
	}
	if index < 0 || index >= len(d.Characteristics) {
		return "", fmt.Errorf("%w: index %d on node %d", ErrCharacteristicNotFound, index, d.Node)
	}
	uuid := d.Characteristics[index].UUID
	if uuid == "" {
		return "", fmt.Errorf("%w: index %d on node %d has no UUID", ErrCharacteristicNotFound, index, d.Node)
	}
	return uuid, nil
}

// splitFields returns upper-cased keys mapped to trimmed values.
func splitFields(line string) map[string]string {
	locs := registryKey.FindAllStringSubmatchIndex(line, -1)
	fields := make(map[string]string, len(locs))
	for i, loc := range locs {
		key := strings.ToUpper(line[loc[2]:loc[3]])
		end := len(line)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		fields[key] = strings.TrimSpace(line[loc[1]:end])
	}
	return fields
}

func hasKey(fields map[string]string, key string) bool {
	_, ok := fields[key]
	return ok
}

func parseDevice(fields map[string]string) (Device, error) {
	node, err := strconv.Atoi(fields["NODE"])
	if err != nil {
		return Device{}, fmt.Errorf("invalid NODE %q", fields["NODE"])
	}
	return Device{
		Node:    node,
		Name:    fields["DEVICE"],
		Type:    strings.ToUpper(fields["TYPE"]),
		Address: strings.ToUpper(fields["ADDRESS"]),
		Random:  isTrue(fields["RANDOM"]),
	}, nil
}

func parseCharacteristic(fields map[string]string) (Characteristic, error) {
	ch := Characteristic{
		Name:   fields["LECHAR"],
		UUID:   strings.ToUpper(fields["UUID"]),
		Permit: strings.ToUpper(fields["PERMIT"]),
	}
	if size, ok := fields["SIZE"]; ok {
		n, err := strconv.Atoi(size)
		if err != nil {
			return Characteristic{}, fmt.Errorf("invalid SIZE %q", size)
		}
		ch.Size = n
	}
	return ch, nil
}

func isTrue(v string) bool {
	switch strings.ToUpper(v) {
	case "1", "YES", "UNCHANGED", "CHANGED":
		return true
	default:
		return false
	}
}
