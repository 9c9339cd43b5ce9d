package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefix is the root of every topic this service publishes.
	TopicPrefix = "tempkey"

	// TopicPrefixStore is the base for record file snapshots.
	TopicPrefixStore = TopicPrefix + "/store"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for MQTT topics so names stay consistent.
//
//	topic := mqtt.Topics{}.StoreSnapshot("tempkey")
//	// Returns: "tempkey/store/tempkey"
type Topics struct{}

// StoreSnapshot returns the retained topic that carries the full record
// file for the named store.
//
// Example: tempkey/store/tempkey
func (Topics) StoreSnapshot(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixStore, name)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: tempkey/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

