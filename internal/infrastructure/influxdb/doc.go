// Package influxdb writes the edge agent's telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written, each tagged with device_id:
//   - sensor_reading: every reading the dummy sensor publishes
//   - connectivity: broker session up/down as seen by the application
//   - command: commands received on the device's command topic
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, deviceID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(21.5)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
