package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading      = "sensor_reading"
	MeasurementConnectivity = "connectivity"
	MeasurementCommand      = "command"
)

// WriteReading records one published sensor reading.
func (c *Client) WriteReading(temperatureCelsius float64) {
	c.writePoint(MeasurementReading, nil, map[string]interface{}{
		"temperature_celsius": temperatureCelsius,
	})
}

// WriteConnectivity records a broker session transition seen by the
// application.
func (c *Client) WriteConnectivity(connected bool) {
	c.writePoint(MeasurementConnectivity, nil, map[string]interface{}{
		"connected": connected,
	})
}

// WriteCommand records a command received from the broker.
//
// Example:
//
//	client.WriteCommand("switch_open", true)
func (c *Client) WriteCommand(action string, applied bool) {
	c.writePoint(MeasurementCommand, map[string]string{"action": action}, map[string]interface{}{
		"applied": applied,
	})
}

// WritePointWithTime writes a custom point. The device_id tag is added.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, c.withDevice(tags), fields, timestamp))
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

func (c *Client) withDevice(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	out["device_id"] = c.deviceID
	return out
}
