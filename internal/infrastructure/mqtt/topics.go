package mqtt

import "fmt"

// Topic prefixes.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{id},
// shared with every other Gray Logic bridge.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// TopicPrefixAdvertiser is the base for BLE advertiser proxy topics.
	TopicPrefixAdvertiser = "graylogic/advertiser"
)

// Topics provides builders for Gray Logic MQTT topics.
//
//	topics := mqtt.Topics{}
//	ackTopic := topics.BridgeAck("fastcon", "17")
//	// Returns: "graylogic/ack/fastcon/17"
type Topics struct{}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeState returns the topic for device state updates from a bridge.
//
// Example: graylogic/state/fastcon/17
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the topic for commands to a bridge.
//
// Example: graylogic/command/fastcon/17
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements from a bridge.
//
// Example: graylogic/ack/fastcon/17
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeEvent returns the topic for bridge-level events.
//
// Example: graylogic/event/fastcon/session_finished
func (Topics) BridgeEvent(protocol, event string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefixBridge, protocol, event)
}

// BridgeHealth returns the topic for bridge health status.
//
// Example: graylogic/health/fastcon
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// =============================================================================
// Advertiser Topics
// =============================================================================

// AdvertiserSet returns the topic a BLE proxy listens on to start advertising.
//
// Example: graylogic/advertiser/esp32/set
func (Topics) AdvertiserSet(proxy string) string {
	return fmt.Sprintf("%s/%s/set", TopicPrefixAdvertiser, proxy)
}

// AdvertiserClear returns the topic a BLE proxy listens on to stop advertising.
//
// Example: graylogic/advertiser/esp32/clear
func (Topics) AdvertiserClear(proxy string) string {
	return fmt.Sprintf("%s/%s/clear", TopicPrefixAdvertiser, proxy)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// BridgeCommands returns a pattern matching every command for one bridge.
//
// Pattern: graylogic/command/fastcon/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// BridgeEvents returns a pattern matching every event from one bridge.
//
// Pattern: graylogic/event/fastcon/+
func (Topics) BridgeEvents(protocol string) string {
	return fmt.Sprintf("%s/event/%s/+", TopicPrefixBridge, protocol)
}

// AllBridgeHealth returns a pattern matching all bridge health updates.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefixBridge)
}
