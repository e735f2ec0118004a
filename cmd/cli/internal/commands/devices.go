package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldsense/waterline/internal/auth"
	"github.com/fieldsense/waterline/internal/deviceapi"
)

type DevicesCmd struct {
	List      DevicesListCmd    `cmd:"" help:"List all devices"`
	Available DevicesAvailCmd   `cmd:"" help:"List devices open for claiming"`
	Get       DevicesGetCmd     `cmd:"" help:"Show a single device"`
	Claim     DevicesClaimCmd   `cmd:"" help:"Claim a device at a position"`
	Latest    DevicesLatestCmd  `cmd:"" help:"Show the latest reading"`
	History   DevicesHistoryCmd `cmd:"" help:"Show recent readings"`
	Stats     DevicesStatsCmd   `cmd:"" help:"Show the dashboard aggregate"`
	Watch     DevicesWatchCmd   `cmd:"" help:"Poll the latest reading"`
}

// devicesSession builds the manager and device client and gates on an
// authenticated session.
func devicesSession(ctx context.Context, flags *ClientFlags) (*auth.Manager, *deviceapi.Client, error) {
	mgr, creds, err := flags.manager()
	if err != nil {
		return nil, nil, err
	}

	if err := requireSession(ctx, mgr); err != nil {
		return nil, nil, err
	}

	return mgr, flags.deviceClient(mgr, creds), nil
}

type DevicesListCmd struct {
	ClientFlags `embed:""`
}

func (d *DevicesListCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	devices, err := client.List(ctx)
	if err != nil {
		return describeError(err)
	}

	printDevices(devices)
	return nil
}

type DevicesAvailCmd struct {
	ClientFlags `embed:""`
}

func (d *DevicesAvailCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	devices, err := client.Available(ctx)
	if err != nil {
		return describeError(err)
	}

	printDevices(devices)
	return nil
}

type DevicesGetCmd struct {
	ClientFlags `embed:""`

	DeviceID string `arg:"" help:"Device identifier"`
}

func (d *DevicesGetCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	device, err := client.Get(ctx, d.DeviceID)
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Device:  %s\n", device.DeviceID)
	if device.Label != "" {
		fmt.Printf("Label:   %s\n", device.Label)
	}
	if device.FieldName != "" {
		fmt.Printf("Field:   %s\n", device.FieldName)
	}
	fmt.Printf("Status:  %s\n", device.ClaimStatus)
	if device.Lat != nil && device.Lon != nil {
		fmt.Printf("Pinned:  %.6f, %.6f\n", *device.Lat, *device.Lon)
	}
	fmt.Printf("Updated: %s\n", device.UpdatedAt)

	return nil
}

type DevicesClaimCmd struct {
	ClientFlags `embed:""`

	DeviceID string  `arg:"" help:"Device identifier"`
	Lat      float64 `help:"Latitude of the installed position" required:""`
	Lon      float64 `help:"Longitude of the installed position" required:""`
}

func (d *DevicesClaimCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	device, err := client.Claim(ctx, deviceapi.ClaimRequest{
		DeviceID: d.DeviceID,
		Lat:      d.Lat,
		Lon:      d.Lon,
	})
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Claimed %s at %.6f, %.6f\n", device.DeviceID, d.Lat, d.Lon)
	return nil
}

type DevicesLatestCmd struct {
	ClientFlags `embed:""`

	DeviceID string `arg:"" help:"Device identifier"`
}

func (d *DevicesLatestCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	metric, err := client.Latest(ctx, d.DeviceID)
	if err != nil {
		return describeError(err)
	}

	printLatest(metric)
	return nil
}

type DevicesHistoryCmd struct {
	ClientFlags `embed:""`

	DeviceID string `arg:"" help:"Device identifier"`
	Hours    int    `help:"How far back to look" default:"24"`
	Limit    int    `help:"Maximum readings" default:"100"`
}

func (d *DevicesHistoryCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	history, err := client.History(ctx, d.DeviceID, d.Hours, d.Limit)
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Readings for %s (last %dh, %d entries):\n", history.DeviceID, d.Hours, history.Count)
	fmt.Printf("%-25s %10s\n", "Time", "Distance")
	fmt.Println(strings.Repeat("─", 36))
	for _, entry := range history.History {
		fmt.Printf("%-25s %9.1fcm\n", entry.Time, entry.Distance)
	}

	return nil
}

type DevicesStatsCmd struct {
	ClientFlags `embed:""`
}

func (d *DevicesStatsCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		return describeError(err)
	}

	fmt.Printf("Devices: %d total, %d claimed by you\n\n", stats.TotalDevices, stats.ClaimedDevices)

	if len(stats.Devices) == 0 {
		fmt.Println("No claimed devices. Use 'waterline-cli devices claim' to claim one.")
		return nil
	}

	fmt.Printf("%-20s %-20s %10s %-25s\n", "Device ID", "Field", "Distance", "Last Update")
	fmt.Println(strings.Repeat("─", 78))
	for _, row := range stats.Devices {
		distance := "-"
		if row.LatestDistance != nil {
			distance = fmt.Sprintf("%.1fcm", *row.LatestDistance)
		}
		lastUpdate := "-"
		if row.LastUpdate != nil {
			lastUpdate = *row.LastUpdate
		}
		fmt.Printf("%-20s %-20s %10s %-25s\n", row.DeviceID, row.FieldName, distance, lastUpdate)
	}

	return nil
}

type DevicesWatchCmd struct {
	ClientFlags `embed:""`

	DeviceID string        `arg:"" help:"Device identifier"`
	Interval time.Duration `help:"Poll interval" default:"10s"`
}

func (d *DevicesWatchCmd) Run(ctx context.Context, globals *Globals) error {
	_, client, err := devicesSession(ctx, &d.ClientFlags)
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s (press Ctrl+C to stop)...\n\n", d.DeviceID)

	poll := func() {
		metric, err := client.Latest(ctx, d.DeviceID)
		if err != nil {
			fmt.Printf("Error fetching latest reading: %v\n", describeError(err))
			return
		}
		printLatest(metric)
	}

	poll()

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}

func printDevices(devices []deviceapi.Device) {
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return
	}

	fmt.Printf("%-20s %-24s %-20s %-10s %-25s\n", "Device ID", "Label", "Field", "Status", "Updated At")
	fmt.Println(strings.Repeat("─", 102))

	for _, d := range devices {
		label := d.Label
		if len(label) > 24 {
			label = label[:21] + "..."
		}
		fmt.Printf("%-20s %-24s %-20s %-10s %-25s\n", d.DeviceID, label, d.FieldName, d.ClaimStatus, d.UpdatedAt)
	}

	fmt.Printf("\nTotal devices: %d\n", len(devices))
}

func printLatest(metric *deviceapi.LatestMetric) {
	if metric.Distance == nil || metric.Time == nil {
		fmt.Printf("%s: no readings yet\n", metric.DeviceID)
		return
	}
	fmt.Printf("%s  %s  %.1fcm\n", metric.DeviceID, *metric.Time, *metric.Distance)
}
