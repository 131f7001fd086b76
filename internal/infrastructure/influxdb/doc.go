// Package influxdb records printer telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes, and health monitoring, and
// provides a watcher observer that turns each poll into points.
//
// # Measurements
//
//	printer_state         tags: printer_status, printjob_state; fields: printing, paused, changed
//	printer_temperature   tags: sensor (bed, hotend_0, ...); fields: current, target
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	w.AddObserver(influxdb.NewTelemetry(client, printerClient))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are batched and asynchronous; failures are delivered through
// SetOnError. Connection and health check errors are returned directly.
package influxdb
