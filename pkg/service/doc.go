// Package service assembles the discovery, registry and activation
// components into the Engine that front-ends drive.
//
// # Modes
//
//   - serial: every ListDevices call enumerates USB ports and probes the
//     candidates. Nothing is kept between calls.
//   - network: a background watcher keeps a registry of mDNS-advertised
//     modules; a sweeper evicts entries not refreshed within the TTL.
//   - both: serial results first, then network entries with other ESNs.
//
// # Operations
//
//	eng, err := service.New(service.Config{Mode: service.ModeNetwork})
//	eng.Start(ctx)
//	defer eng.Stop()
//
//	devices, _ := eng.ListDevices(ctx)
//	res, err := eng.Activate(ctx, activation.Request{
//		DeviceID:   devices[0].ID,
//		OperatorID: "OP123",
//		AircraftID: "AC567",
//	})
//
// Registry changes and activation outcomes are forwarded to the optional
// metrics, notifier and trace observers.
package service
