// Package influxdb writes receiver metrics to InfluxDB v2.
//
// Three measurements are produced: avr_volume (level, db, muted),
// avr_power (on, tagged by state) and avr_command (ok, duration_ms,
// tagged by command, source and failure kind). Points are batched by the
// non-blocking write API according to batch_size and flush_interval.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteVolume(141, -10, false, time.Now())
package influxdb
