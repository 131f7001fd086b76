package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementState       = "printer_state"
	MeasurementTemperature = "printer_temperature"
)

// WritePoint queues a point with the given timestamp. The write is
// non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Low-cardinality indexed values
//   - fields: The recorded values
//   - ts: Point timestamp
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
