// Package printer talks to a networked Ultimaker printer over its HTTP API.
//
// It has two halves:
//
//   - Locator finds the printer's IP address from its hardware (MAC) address by
//     walking the configured subnet and consulting the kernel neighbour table,
//     escalating to an active probe when an entry is missing. A static address
//     can be configured instead, in which case no discovery ever runs.
//
//   - Client issues digest-authenticated requests against the current address.
//     In dynamic mode a transport failure triggers exactly one Locator refresh and
//     one retry; in static mode it is reported immediately. Non-success status
//     codes are returned as *RejectedError and never retried.
//
// Errors:
//   - ErrDeviceUnreachable: no address, or transport failure after the allowed retry
//   - ErrDeviceRejected: the device answered with a non-2xx status
//
// Media helpers extract a JPEG frame from the camera's snapshot or MJPEG stream
// and the PNG thumbnail from a print job's container archive.
package printer
