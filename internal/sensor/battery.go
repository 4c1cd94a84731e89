package sensor

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"codeberg.org/mutker/devtelemetry/internal/telemetry"
)

const (
	SourceBattery      = "battery"
	DefaultBatteryPath = "/sys/class/power_supply"

	FieldCharging = "charging"
)

// Battery reads the Linux power-supply class. Level comes from the first
// battery; charging is true while any mains supply is online, or, without
// one, while the battery reports it is not discharging.
type Battery struct {
	root string
}

func NewBattery(root string) *Battery {
	if root == "" {
		root = DefaultBatteryPath
	}
	return &Battery{root: root}
}

func (*Battery) Name() string { return SourceBattery }

func (*Battery) Fields() []telemetry.Field {
	return []telemetry.Field{
		{Name: telemetry.FieldBatteryLevel, Type: telemetry.TypeNumber},
		{Name: FieldCharging, Type: telemetry.TypeBool},
	}
}

func (b *Battery) Read(ctx context.Context) (map[string]any, error) {
	errFactory := errors.New()

	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, errFactory.Wrap(ErrNoBattery, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		battery     string
		mainsSeen   bool
		mainsOnline bool
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := filepath.Join(b.root, name)
		switch readAttr(dir, "type") {
		case "Battery":
			if battery == "" {
				battery = dir
			}
		case "Mains", "USB", "USB_C", "USB_PD":
			mainsSeen = true
			if readAttr(dir, "online") == "1" {
				mainsOnline = true
			}
		}
	}

	if battery == "" {
		return nil, errFactory.WithData(ErrNoBattery, b.root)
	}

	values := map[string]any{
		telemetry.FieldBatteryLevel: batteryLevel(battery),
	}

	status := readAttr(battery, "status")
	switch {
	case mainsSeen:
		values[FieldCharging] = mainsOnline
	case status != "":
		values[FieldCharging] = status != "Discharging"
	default:
		values[FieldCharging] = nil
	}

	return values, nil
}

// batteryLevel returns capacity in percent, falling back to the
// energy or charge ratios some drivers expose instead. The raw text is
// returned so the normalizer decides what is representable.
func batteryLevel(dir string) any {
	if c := readAttr(dir, "capacity"); c != "" {
		return c
	}

	for _, pair := range [][2]string{{"energy_now", "energy_full"}, {"charge_now", "charge_full"}} {
		now, errNow := strconv.ParseFloat(readAttr(dir, pair[0]), 64)
		full, errFull := strconv.ParseFloat(readAttr(dir, pair[1]), 64)
		if errNow == nil && errFull == nil && full > 0 {
			return now / full * 100
		}
	}

	return nil
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
