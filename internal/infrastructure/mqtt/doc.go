// Package mqtt provides MQTT client connectivity for the Fastcon bridge.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees, blocking or asynchronous
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Gray Logic uses MQTT as the internal message bus between Core and the
// protocol bridges. The Fastcon bridge takes light commands from it and
// publishes acknowledgements, mesh events and health. When no local HCI
// adapter is available the advertisements themselves are handed to a BLE
// proxy over the same broker.
//
//	Gray Logic Core ↔ MQTT Broker ↔ Fastcon Bridge ↔ (HCI | MQTT proxy) ↔ lights
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Advertisement payloads are mesh-key encrypted but the key itself is
//     never published
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithWill(mqtt.Topics{}.BridgeHealth("fastcon"), lwtPayload))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("fastcon"), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.Handle(topic, payload)
//	    })
package mqtt
