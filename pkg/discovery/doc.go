// Package discovery finds RSAS modules on USB serial ports and on the local
// network.
//
// # Serial
//
// SerialScanner enumerates ports, keeps those whose USB vendor ID is one of
// the bridge chips modules ship with, and sends each a GET_INFO probe. The
// result is a snapshot computed per call; nothing is cached between scans.
// A port that does not answer is still reported, identified by its USB
// serial number or its device name.
//
// # Network
//
// Modules advertise their HTTP API over mDNS:
//
//	Service: _http._tcp.local.
//	Host:    rsas-<esn>.local.
//
// MDNSBrowser converts zeroconf results into ServiceEvents (added, updated,
// removed), merging addresses announced on several interfaces.
// NetworkWatcher is the single consumer of those events and the only writer
// of discovery results into the registry. Services whose hostname does not
// follow the rsas- convention are ignored.
package discovery
