// Package mqttadv hands Fastcon advertisements to a BLE proxy over MQTT.
//
// It is the transport for hosts without a usable Bluetooth controller: an
// ESP32 (or any BLE-capable node) subscribes to
//
//	graylogic/advertiser/{proxy}/set    start advertising the given payload
//	graylogic/advertiser/{proxy}/clear  stop advertising
//
// The set payload is JSON: the advertisement as lowercase hex plus the
// advertising interval bounds in 0.625 ms units. Publishing is asynchronous
// because SetPayload is called from the scheduler's poll and must not wait
// on the broker. Broker latency is not compensated; the advertising window
// on air is the scheduler's duration plus whatever delay the link adds.
package mqttadv
